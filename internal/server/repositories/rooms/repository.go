package rooms

import (
	"context"
	"time"

	"github.com/akarpovs/roomdrop/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByCode(ctx context.Context, code string) (*models.Room, error)
	GetByID(ctx context.Context, id string) (*models.Room, error)
	TouchActivity(ctx context.Context, id string, at time.Time) error
	SoftDelete(ctx context.Context, id string) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
