package models

import "time"

// CachedItem mirrors a server item in the local cache. The server response
// always wins on merge; local edits live in the pending queue, not here.
type CachedItem struct {
	ID        string
	RoomCode  string
	Type      string
	Name      string
	Content   []byte
	Version   int64
	CreatedBy string
	UpdatedAt time.Time
	Deleted   bool
}
