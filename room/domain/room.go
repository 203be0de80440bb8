package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRoomNotFound is returned when a room id has no provisioned slot.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNoImageYet is returned when a room exists but nothing has been pushed to it.
	ErrNoImageYet = errors.New("no screenshot yet")
	// ErrUploadRejected is returned for a missing or unusable upload payload.
	ErrUploadRejected = errors.New("upload rejected")
)

// Room is a logical channel that pairs one producer stream with any number of viewers.
type Room struct {
	ID        string
	SlotPath  string
	CreatedAt time.Time
}

// RoomRepository is the authority on which rooms exist.
type RoomRepository interface {
	// CreateRoom generates a fresh room id and provisions its empty slot.
	CreateRoom(ctx context.Context) (*Room, error)

	// RoomExists reports whether a slot has been provisioned for id.
	RoomExists(ctx context.Context, id string) (bool, error)

	// ResolveSlot returns the room with its slot location, or ErrRoomNotFound.
	ResolveSlot(ctx context.Context, id string) (*Room, error)
}
