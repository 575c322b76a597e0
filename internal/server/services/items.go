package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/dbx"
	sc "github.com/akarpovs/roomdrop/internal/server/config"
	"github.com/akarpovs/roomdrop/internal/server/models"
	"github.com/akarpovs/roomdrop/internal/server/repositories/repomanager"
)

// appendAttempts bounds how many times a version-number race is retried with
// a fresh max-read before the conflict is surfaced to the caller.
const appendAttempts = 3

// ItemService manages items and their append-only version history.
type ItemService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
}

func NewItemService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config) *ItemService {
	return &ItemService{db: db, repomanager: repomanager, config: config}
}

func validItemType(t string) bool {
	switch t {
	case models.ItemTypeFile, models.ItemTypeCode, models.ItemTypeText, models.ItemTypeLink:
		return true
	}
	return false
}

// Create inserts a new item with its version-1 snapshot and bumps the room's
// activity. The room's max-items setting is enforced here.
func (s *ItemService) Create(ctx context.Context, room *models.Room, actorID string,
	id, itemType, name string, content []byte, parentID string) (*models.Item, error) {

	if !validItemType(itemType) {
		return nil, fmt.Errorf("%w: unknown item type %q", common.ErrValidation, itemType)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty content", common.ErrValidation)
	}

	count, err := s.repomanager.Items(s.db).CountByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("error counting items: %w", err)
	}
	if count >= room.Settings.MaxItems {
		return nil, fmt.Errorf("%w: room item limit reached", common.ErrValidation)
	}

	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	item := &models.Item{
		ID:        id,
		RoomID:    room.ID,
		Type:      itemType,
		Name:      name,
		Content:   content,
		ParentID:  parentID,
		CreatedBy: actorID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Items(tx).Create(ctx, item); err != nil {
			return err
		}
		v := &models.Version{
			ID:        uuid.NewString(),
			ItemID:    item.ID,
			RoomID:    room.ID,
			Version:   1,
			Content:   content,
			Author:    actorID,
			SizeBytes: int64(len(content)),
			CreatedAt: now,
		}
		if err := s.repomanager.Versions(tx).Insert(ctx, v); err != nil {
			return err
		}
		return s.repomanager.Rooms(tx).TouchActivity(ctx, room.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("error creating item: %w", err)
	}

	return item, nil
}

// Update replaces an item's content under last-writer-wins semantics and
// appends a version snapshot. The version number race is retried with a
// fresh max-read a bounded number of times; a tombstoned item surfaces
// ErrConflict so offline writers learn the item is gone.
func (s *ItemService) Update(ctx context.Context, itemID, actorID, name string, content []byte) (*models.Item, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty content", common.ErrValidation)
	}

	item, err := s.repomanager.Items(s.db).GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Deleted {
		return nil, common.ErrConflict
	}

	version, err := s.appendVersion(ctx, item, actorID, content)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item.Version = version.Version
	item.Content = content
	item.UpdatedAt = now
	if name != "" {
		item.Name = name
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Items(tx).Update(ctx, item); err != nil {
			return err
		}
		return s.repomanager.Rooms(tx).TouchActivity(ctx, item.RoomID, now)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.repomanager.Versions(s.db).Prune(ctx, item.ID, s.config.VersionRetention); err != nil {
		return nil, fmt.Errorf("error pruning versions: %w", err)
	}

	return item, nil
}

// appendVersion claims the next free version number for the item. The
// storage-layer uniqueness constraint on (item_id, version) decides races;
// the loser re-reads max and tries again.
func (s *ItemService) appendVersion(ctx context.Context, item *models.Item, actorID string, content []byte) (*models.Version, error) {
	repo := s.repomanager.Versions(s.db)

	var v *models.Version
	backoff := retry.WithMaxRetries(appendAttempts, retry.NewConstant(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		maxVersion, err := repo.MaxVersion(ctx, item.ID)
		if err != nil {
			return err
		}
		candidate := &models.Version{
			ID:        uuid.NewString(),
			ItemID:    item.ID,
			RoomID:    item.RoomID,
			Version:   maxVersion + 1,
			Content:   content,
			Author:    actorID,
			SizeBytes: int64(len(content)),
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.Insert(ctx, candidate); err != nil {
			if errors.Is(err, common.ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		v = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Delete tombstones an item and bumps room activity.
func (s *ItemService) Delete(ctx context.Context, itemID string) (*models.Item, error) {
	item, err := s.repomanager.Items(s.db).GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Deleted {
		return nil, common.ErrNotFound
	}

	now := time.Now().UTC()
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Items(tx).SoftDelete(ctx, itemID); err != nil {
			return err
		}
		return s.repomanager.Rooms(tx).TouchActivity(ctx, item.RoomID, now)
	})
	if err != nil {
		return nil, err
	}

	item.Deleted = true
	item.UpdatedAt = now
	return item, nil
}

// Get returns a live item; tombstones come back as missing.
func (s *ItemService) Get(ctx context.Context, itemID string) (*models.Item, error) {
	item, err := s.repomanager.Items(s.db).GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Deleted {
		return nil, common.ErrNotFound
	}
	return item, nil
}

// List lists the room's live items.
func (s *ItemService) List(ctx context.Context, roomID string) ([]*models.Item, error) {
	return s.repomanager.Items(s.db).ListByRoom(ctx, roomID)
}

// History returns the most recent limit versions of the item, newest first.
func (s *ItemService) History(ctx context.Context, itemID string, limit int) ([]*models.Version, error) {
	if limit <= 0 || limit > 100 {
		limit = s.config.VersionRetention
	}
	return s.repomanager.Versions(s.db).History(ctx, itemID, limit)
}

// Latest returns the highest-numbered version of the item.
func (s *ItemService) Latest(ctx context.Context, itemID string) (*models.Version, error) {
	return s.repomanager.Versions(s.db).Latest(ctx, itemID)
}
