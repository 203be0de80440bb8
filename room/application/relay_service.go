package application

import (
	"context"
	"fmt"

	"github.com/dfryer1193/roomshot/room/domain"
	"github.com/rs/zerolog/log"
)

// Counters receives usage counts. A nil Counters disables counting.
type Counters interface {
	Inc(ctx context.Context, name string, labels map[string]string, n int64)
}

// Negotiation is the outcome of a conditional read.
// When NotModified is set, Image carries only the version and no content.
type Negotiation struct {
	NotModified bool
	Image       *domain.Image
}

// ETag returns the entity tag of the negotiated image.
func (n *Negotiation) ETag() string {
	return FormatETag(n.Image.Version)
}

// RelayService connects producers and viewers through the per-room image slot.
type RelayService struct {
	rooms    domain.RoomRepository
	images   domain.ImageStore
	counters Counters
}

func NewRelayService(rooms domain.RoomRepository, images domain.ImageStore, counters Counters) *RelayService {
	return &RelayService{
		rooms:    rooms,
		images:   images,
		counters: counters,
	}
}

// CreateRoom provisions a new room with an empty slot
func (s *RelayService) CreateRoom(ctx context.Context) (*domain.Room, error) {
	room, err := s.rooms.CreateRoom(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	s.inc(ctx, "rooms_created_total", 1)
	return room, nil
}

// Push makes content the room's current image, retiring the previous one
func (s *RelayService) Push(ctx context.Context, roomID string, content []byte) (*domain.Image, error) {
	room, err := s.rooms.ResolveSlot(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if len(content) == 0 {
		return nil, fmt.Errorf("empty image data: %w", domain.ErrUploadRejected)
	}

	img, err := s.images.Replace(ctx, room, content)
	if err != nil {
		return nil, fmt.Errorf("failed to replace image in room %s: %w", roomID, err)
	}

	log.Ctx(ctx).Info().
		Str("room_id", roomID).
		Str("version", img.Version).
		Int("bytes", img.Size()).
		Msg("screenshot stored")
	s.inc(ctx, "images_replaced_total", 1)
	s.inc(ctx, "images_bytes_stored_total", int64(img.Size()))

	return img, nil
}

// Negotiate returns the current image unless ifNoneMatch already names its version.
// Errors are domain.ErrRoomNotFound or domain.ErrNoImageYet for the expected cases.
func (s *RelayService) Negotiate(ctx context.Context, roomID string, ifNoneMatch string) (*Negotiation, error) {
	room, err := s.rooms.ResolveSlot(ctx, roomID)
	if err != nil {
		return nil, err
	}

	img, err := s.images.ReadCurrent(ctx, room)
	if err != nil {
		return nil, err
	}

	if MatchesIfNoneMatch(ifNoneMatch, img.Version) {
		s.inc(ctx, "screen_not_modified_total", 1)
		return &Negotiation{
			NotModified: true,
			Image:       &domain.Image{RoomID: img.RoomID, Version: img.Version, StoredAt: img.StoredAt},
		}, nil
	}

	return &Negotiation{Image: img}, nil
}

func (s *RelayService) inc(ctx context.Context, name string, n int64) {
	if s.counters == nil {
		return
	}
	s.counters.Inc(ctx, name, map[string]string{}, n)
}
