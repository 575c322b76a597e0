package models

import "time"

// Version is one immutable historical snapshot of an item's content.
// Numbers for one item form a contiguous strictly increasing sequence
// starting at 1; pruning removes only the oldest tail.
type Version struct {
	ID        string
	ItemID    string
	RoomID    string
	Version   int64
	Content   []byte
	Author    string
	SizeBytes int64
	CreatedAt time.Time
}
