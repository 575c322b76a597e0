// Package models defines server-side data models persisted in the database.
package models

import "time"

// Room modes.
const (
	RoomModeLocal    = "local"
	RoomModeInternet = "internet"
)

// Room access policies.
const (
	RoomAccessPublic   = "public"
	RoomAccessPrivate  = "private"
	RoomAccessPassword = "password"
)

// Room lifespans.
const (
	RoomLifespanTemporary  = "temporary"
	RoomLifespanPersistent = "persistent"
)

// RoomSettings bounds what a room accepts.
type RoomSettings struct {
	MaxItems        int    `json:"maxItems"`
	MaxFileSize     int64  `json:"maxFileSize"`
	AllowedTypes    string `json:"allowedTypes"` // comma-separated, empty = all
	AutoExpireHours int    `json:"autoExpireHours"`
}

// Room is a named, access-controlled space containing items and peers.
// Code is stored uppercase and is unique among live rooms.
type Room struct {
	ID           string
	Code         string
	Mode         string
	Access       string
	Lifespan     string
	OwnerID      string
	PasswordHash []byte
	PasswordSalt []byte
	Settings     RoomSettings

	LastActivityAt time.Time
	Deleted        bool
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// Accessible reports whether the room can still be entered: not soft-deleted
// and either without expiry or with the expiry still in the future.
func (r *Room) Accessible(now time.Time) bool {
	if r.Deleted {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}
