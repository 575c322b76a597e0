package items

import (
	"context"

	"github.com/akarpovs/roomdrop/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, item *models.Item) error
	Update(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, id string) (*models.Item, error)
	ListByRoom(ctx context.Context, roomID string) ([]*models.Item, error)
	CountByRoom(ctx context.Context, roomID string) (int, error)
	SoftDelete(ctx context.Context, id string) error
}
