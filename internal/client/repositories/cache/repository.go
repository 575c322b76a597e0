// Package cache mirrors server items in the client's local sqlite database.
package cache

import (
	"context"

	"github.com/akarpovs/roomdrop/internal/client/models"
)

// Repository is the local read model of room items. Server responses are
// merged in verbatim; the cache never holds unsynced edits.
type Repository interface {
	Upsert(ctx context.Context, item *models.CachedItem) error
	MarkDeleted(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.CachedItem, error)
	ListByRoom(ctx context.Context, roomCode string) ([]models.CachedItem, error)
	PurgeRoom(ctx context.Context, roomCode string) error
}
