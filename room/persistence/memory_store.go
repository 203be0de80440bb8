package persistence

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dfryer1193/roomshot/room/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var _ domain.ImageStore = (*MemoryImageStore)(nil)

// MemoryImageStore is an in-process domain.ImageStore. Each room's slot is an
// atomic pointer, so a replace is a single swap.
type MemoryImageStore struct {
	mu    sync.RWMutex
	slots map[string]*atomic.Pointer[domain.Image]
}

// NewMemoryImageStore creates an empty in-memory store.
func NewMemoryImageStore() *MemoryImageStore {
	return &MemoryImageStore{slots: make(map[string]*atomic.Pointer[domain.Image])}
}

// Replace swaps in a copy of content under a new version.
func (s *MemoryImageStore) Replace(ctx context.Context, room *domain.Room, content []byte) (*domain.Image, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty image data: %w", domain.ErrUploadRejected)
	}

	// Copy the data to avoid external modifications.
	copyBuf := make([]byte, len(content))
	copy(copyBuf, content)

	img := &domain.Image{
		RoomID:      room.ID,
		Version:     uuid.NewString(),
		ContentType: http.DetectContentType(copyBuf),
		Content:     copyBuf,
		StoredAt:    time.Now().UTC(),
	}
	s.slot(room.ID).Store(img)

	log.Ctx(ctx).Debug().Str("room_id", room.ID).Str("version", img.Version).Int("bytes", len(copyBuf)).Msg("image replaced in memory")
	return cloneImage(img), nil
}

// ReadCurrent returns a copy of the room's image, or domain.ErrNoImageYet.
func (s *MemoryImageStore) ReadCurrent(ctx context.Context, room *domain.Room) (*domain.Image, error) {
	s.mu.RLock()
	p, ok := s.slots[room.ID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNoImageYet
	}

	img := p.Load()
	if img == nil {
		return nil, domain.ErrNoImageYet
	}
	return cloneImage(img), nil
}

func (s *MemoryImageStore) slot(roomID string) *atomic.Pointer[domain.Image] {
	s.mu.RLock()
	p := s.slots[roomID]
	s.mu.RUnlock()
	if p != nil {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p = s.slots[roomID]; p == nil {
		p = &atomic.Pointer[domain.Image]{}
		s.slots[roomID] = p
	}
	return p
}

func cloneImage(img *domain.Image) *domain.Image {
	out := *img
	out.Content = make([]byte, len(img.Content))
	copy(out.Content, img.Content)
	return &out
}
