package versions

import (
	"context"

	"github.com/akarpovs/roomdrop/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, v *models.Version) error
	MaxVersion(ctx context.Context, itemID string) (int64, error)
	Latest(ctx context.Context, itemID string) (*models.Version, error)
	History(ctx context.Context, itemID string, limit int) ([]*models.Version, error)
	Prune(ctx context.Context, itemID string, keep int) (int64, error)
}
