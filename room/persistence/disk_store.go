package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dfryer1193/roomshot/room/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var _ domain.ImageStore = (*DiskImageStore)(nil)

const (
	// currentFile names the image that is visible to readers.
	currentFile = "CURRENT"
	imageExt    = ".img"
	// readAttempts bounds how often a read re-resolves CURRENT after losing a race with pruning.
	readAttempts = 32
	// staleTempAge is how old an unpublished .tmp- file must be before prune removes it.
	staleTempAge = 10 * time.Minute
)

var errSlotChanged = errors.New("slot changed during read")

// DiskImageStore keeps each room's image as a file in the room's slot directory.
//
// Replace writes the new image to a temp file, renames it to <version>.img, swaps the
// CURRENT pointer by rename and then removes every other image file. Readers resolve
// CURRENT and open the named file, so they see either the old or the new image.
type DiskImageStore struct {
	// locks serializes publish-and-prune per room; file writes happen outside it.
	locks sync.Map
}

// NewDiskImageStore creates a filesystem backed image store.
func NewDiskImageStore() *DiskImageStore {
	return &DiskImageStore{}
}

// Replace stores content as the room's only image and returns it under a new version
func (s *DiskImageStore) Replace(ctx context.Context, room *domain.Room, content []byte) (*domain.Image, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty image data: %w", domain.ErrUploadRejected)
	}

	tmpPath, err := writeTemp(room.SlotPath, ".tmp-*", content)
	if err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	version := uuid.NewString()
	if err := s.publish(room, tmpPath, version); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	img := &domain.Image{
		RoomID:      room.ID,
		Version:     version,
		ContentType: http.DetectContentType(content),
		Content:     content,
	}
	if info, err := os.Stat(filepath.Join(room.SlotPath, version+imageExt)); err == nil {
		img.StoredAt = info.ModTime().UTC()
	}

	log.Ctx(ctx).Debug().Str("room_id", room.ID).Str("version", version).Int("bytes", len(content)).Msg("image replaced on disk")
	return img, nil
}

func (s *DiskImageStore) publish(room *domain.Room, tmpPath, version string) error {
	mu := s.roomLock(room.ID)
	mu.Lock()
	defer mu.Unlock()

	imageName := version + imageExt
	imagePath := filepath.Join(room.SlotPath, imageName)
	if err := os.Rename(tmpPath, imagePath); err != nil {
		return fmt.Errorf("failed to place image: %w", err)
	}

	ptrPath, err := writeTemp(room.SlotPath, ".ptr-*", []byte(imageName))
	if err != nil {
		_ = os.Remove(imagePath)
		return fmt.Errorf("failed to write current pointer: %w", err)
	}
	if err := os.Rename(ptrPath, filepath.Join(room.SlotPath, currentFile)); err != nil {
		_ = os.Remove(ptrPath)
		_ = os.Remove(imagePath)
		return fmt.Errorf("failed to publish image: %w", err)
	}

	return prune(room.SlotPath, imageName)
}

// prune removes every image file except keep, plus temp files left by failed
// or crashed publishes. Files already gone are fine. Callers hold the room lock,
// so any .ptr- file is stale; .tmp- files may belong to a writer still outside
// the lock and are only removed once old.
func prune(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list room slot: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if name == keep || !isPrunable(e) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", name).Msg("failed to retire slot file")
		}
	}

	return nil
}

func isPrunable(e os.DirEntry) bool {
	name := e.Name()
	switch {
	case strings.HasSuffix(name, imageExt), strings.HasPrefix(name, ".ptr-"):
		return true
	case strings.HasPrefix(name, ".tmp-"):
		info, err := e.Info()
		return err == nil && time.Since(info.ModTime()) > staleTempAge
	default:
		return false
	}
}

// ReadCurrent returns the image CURRENT points at, or domain.ErrNoImageYet
func (s *DiskImageStore) ReadCurrent(ctx context.Context, room *domain.Room) (*domain.Image, error) {
	for attempt := 0; attempt < readAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ptr, err := os.ReadFile(filepath.Join(room.SlotPath, currentFile))
		if os.IsNotExist(err) {
			return nil, domain.ErrNoImageYet
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read current pointer: %w", err)
		}

		imageName := filepath.Base(strings.TrimSpace(string(ptr)))
		path := filepath.Join(room.SlotPath, imageName)

		content, modTime, err := readImageFile(path)
		if os.IsNotExist(err) {
			// Pruned by a newer publish between reading CURRENT and opening the file
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}

		return &domain.Image{
			RoomID:      room.ID,
			Version:     strings.TrimSuffix(imageName, imageExt),
			ContentType: http.DetectContentType(content),
			Content:     content,
			StoredAt:    modTime.UTC(),
		}, nil
	}

	return nil, errSlotChanged
}

// readImageFile reads through one open handle, which stays valid if the file is unlinked meanwhile.
func readImageFile(path string) ([]byte, time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, time.Time{}, err
	}
	return content, info.ModTime(), nil
}

func (s *DiskImageStore) roomLock(roomID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(roomID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// writeTemp writes content to a new synced temp file in dir and returns its path.
func writeTemp(dir, pattern string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	_ = os.Chmod(tmpPath, 0644)

	return tmpPath, nil
}
