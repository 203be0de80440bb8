package domain

import (
	"context"
	"time"
)

// Image is the single image resident in a room's slot.
// Version is unique per push and doubles as the cache validation tag.
type Image struct {
	RoomID      string
	Version     string
	ContentType string
	Content     []byte
	StoredAt    time.Time
}

// Size returns the payload length in bytes.
func (i *Image) Size() int {
	return len(i.Content)
}

// ImageStore holds at most one image per room.
type ImageStore interface {
	// Replace stores content as the room's sole image under a new version and
	// retires the previous one. Readers never observe an empty slot once a
	// replace has completed.
	Replace(ctx context.Context, room *Room, content []byte) (*Image, error)

	// ReadCurrent returns the stored image, or ErrNoImageYet.
	ReadCurrent(ctx context.Context, room *Room) (*Image, error)
}
