package models

import "time"

// Item types.
const (
	ItemTypeFile = "file"
	ItemTypeCode = "code"
	ItemTypeText = "text"
	ItemTypeLink = "link"
)

// Item is one shared unit of content inside a room. Content is a
// type-discriminated JSON payload: text/code/url fields, or file metadata
// (storage key, size, mime) for file-backed items. Deleted rows are kept as
// tombstones so that late offline updates surface a conflict instead of
// resurrecting the item.
type Item struct {
	ID        string
	RoomID    string
	Type      string
	Name      string
	Content   []byte
	ParentID  string
	CreatedBy string
	Version   int64
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
