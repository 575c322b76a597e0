package uploads

import (
	"context"
	"time"

	"github.com/akarpovs/roomdrop/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, upload *models.Upload) error
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	AckChunk(ctx context.Context, uploadID string, index int, etag string) error
	CountUploaded(ctx context.Context, uploadID string) (int, error)
	Chunks(ctx context.Context, uploadID string) ([]*models.Chunk, error)
	TransitionStatus(ctx context.Context, uploadID string, from []string, to string) error
	MarkCompleted(ctx context.Context, uploadID, itemID string) error
	SelectExpired(ctx context.Context, now time.Time) ([]*models.Upload, error)
	Delete(ctx context.Context, uploadID string) error
}
