// Package services implements the server-side domain logic on top of the
// repositories: room lifecycle, item mutation with version history, and the
// chunked upload ledger.
package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/server/auth"
	sc "github.com/akarpovs/roomdrop/internal/server/config"
	"github.com/akarpovs/roomdrop/internal/server/models"
	"github.com/akarpovs/roomdrop/internal/server/repositories/repomanager"
)

// Room codes avoid 0/O/1/I so they survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 8

const createCodeAttempts = 5

// RoomService manages room lifecycle and access checks.
type RoomService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
}

func NewRoomService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config) *RoomService {
	return &RoomService{db: db, repomanager: repomanager, config: config}
}

// GenerateRoomCode returns a fresh 8-character code.
func GenerateRoomCode() (string, error) {
	var b strings.Builder
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// CreateRoomParams carries caller input for a new room.
type CreateRoomParams struct {
	Mode     string
	Access   string
	Lifespan string
	Password string
	OwnerID  string
	Settings models.RoomSettings
	TTL      time.Duration
}

// Create validates the parameters, generates a code and inserts the room.
// Code collisions are retried a few times before surfacing the conflict.
func (s *RoomService) Create(ctx context.Context, p CreateRoomParams) (*models.Room, error) {
	switch p.Mode {
	case "", models.RoomModeLocal, models.RoomModeInternet:
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", common.ErrValidation, p.Mode)
	}
	switch p.Access {
	case "", models.RoomAccessPublic, models.RoomAccessPrivate, models.RoomAccessPassword:
	default:
		return nil, fmt.Errorf("%w: unknown access %q", common.ErrValidation, p.Access)
	}
	switch p.Lifespan {
	case "", models.RoomLifespanTemporary, models.RoomLifespanPersistent:
	default:
		return nil, fmt.Errorf("%w: unknown lifespan %q", common.ErrValidation, p.Lifespan)
	}
	if p.Access == models.RoomAccessPassword && p.Password == "" {
		return nil, fmt.Errorf("%w: password access requires a password", common.ErrValidation)
	}

	room := &models.Room{
		ID:             uuid.NewString(),
		Mode:           models.RoomModeInternet,
		Access:         models.RoomAccessPublic,
		Lifespan:       models.RoomLifespanTemporary,
		OwnerID:        p.OwnerID,
		Settings:       p.Settings,
		LastActivityAt: time.Now().UTC(),
	}
	if p.Mode != "" {
		room.Mode = p.Mode
	}
	if p.Access != "" {
		room.Access = p.Access
	}
	if p.Lifespan != "" {
		room.Lifespan = p.Lifespan
	}
	if room.Settings.MaxItems <= 0 {
		room.Settings.MaxItems = 100
	}
	if room.Settings.MaxFileSize <= 0 {
		room.Settings.MaxFileSize = 100 << 20
	}
	if room.Settings.AutoExpireHours < 0 {
		return nil, fmt.Errorf("%w: negative auto-expire", common.ErrValidation)
	}
	if p.TTL > 0 {
		expiry := room.LastActivityAt.Add(p.TTL)
		room.ExpiresAt = &expiry
	}

	if p.Access == models.RoomAccessPassword {
		salt, err := auth.RandBytes(16)
		if err != nil {
			return nil, fmt.Errorf("salt error: %w", err)
		}
		room.PasswordSalt = salt
		room.PasswordHash = auth.HashPassword([]byte(p.Password), salt)
	}

	repo := s.repomanager.Rooms(s.db)

	for attempt := 0; attempt < createCodeAttempts; attempt++ {
		code, err := GenerateRoomCode()
		if err != nil {
			return nil, fmt.Errorf("code error: %w", err)
		}
		room.Code = code

		err = repo.Create(ctx, room)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, common.ErrConflict) {
			return nil, fmt.Errorf("error creating room: %w", err)
		}
	}

	return nil, fmt.Errorf("%w: could not allocate a unique room code", common.ErrConflict)
}

// Get returns the accessible room for the code. Codes are case-insensitive;
// they are canonicalized to uppercase here. A soft-deleted room is reported
// as missing, an expired one as expired.
func (s *RoomService) Get(ctx context.Context, code string) (*models.Room, error) {
	room, err := s.repomanager.Rooms(s.db).GetByCode(ctx, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	if room.ExpiresAt != nil && !room.ExpiresAt.After(time.Now()) {
		return nil, common.ErrExpired
	}
	return room, nil
}

// GetByID returns an accessible room by primary key.
func (s *RoomService) GetByID(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.repomanager.Rooms(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.Accessible(time.Now()) {
		return nil, common.ErrNotFound
	}
	return room, nil
}

// Join resolves the room and enforces its access policy. The private policy
// admits only the owner; the password policy verifies the supplied password.
func (s *RoomService) Join(ctx context.Context, code, password, actorID string) (*models.Room, error) {
	room, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	switch room.Access {
	case models.RoomAccessPrivate:
		if room.OwnerID == "" || room.OwnerID != actorID {
			return nil, common.ErrUnauthorized
		}
	case models.RoomAccessPassword:
		if !auth.VerifyPassword([]byte(password), room.PasswordSalt, room.PasswordHash) {
			return nil, common.ErrUnauthorized
		}
	}

	return room, nil
}

// Delete soft-deletes the room. Only the owner (or an unowned room's any
// caller) may delete.
func (s *RoomService) Delete(ctx context.Context, code, actorID string) error {
	room, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if room.OwnerID != "" && room.OwnerID != actorID {
		return common.ErrUnauthorized
	}
	return s.repomanager.Rooms(s.db).SoftDelete(ctx, room.ID)
}

// ExpireStale is the reaper hook for rooms.
func (s *RoomService) ExpireStale(ctx context.Context) (int64, error) {
	return s.repomanager.Rooms(s.db).ExpireStale(ctx, time.Now().UTC())
}
