package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dfryer1193/roomshot/room/domain"
	"github.com/dfryer1193/roomshot/shared/db"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var _ domain.RoomRepository = (*SQLiteRoomRepository)(nil)

// SQLiteRoomRepository implements domain.RoomRepository with a rooms table and
// one slot directory per room under baseDir.
type SQLiteRoomRepository struct {
	db      *sql.DB
	baseDir string
}

// NewRoomRepository creates the repository, making sure baseDir exists.
func NewRoomRepository(sqlDB *sql.DB, baseDir string) (*SQLiteRoomRepository, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("room storage directory cannot be empty")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create room storage directory: %w", err)
	}

	return &SQLiteRoomRepository{
		db:      sqlDB,
		baseDir: baseDir,
	}, nil
}

const insertRoomQuery = `
	INSERT INTO rooms (id, slot_path, created_at)
	VALUES (?, ?, ?)
`

// CreateRoom provisions the room's slot directory and inserts its row within a
// transaction. The directory is removed again if the transaction fails.
func (r *SQLiteRoomRepository) CreateRoom(ctx context.Context) (*domain.Room, error) {
	room := &domain.Room{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	room.SlotPath = filepath.Join(r.baseDir, room.ID)

	slotCreated := false
	err := db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		if err := os.Mkdir(room.SlotPath, 0755); err != nil {
			return fmt.Errorf("failed to create room slot: %w", err)
		}
		slotCreated = true

		executor := db.GetExecutor(txCtx, r.db)
		_, err := executor.ExecContext(txCtx, insertRoomQuery,
			room.ID,
			room.SlotPath,
			room.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert room record: %w", err)
		}

		return nil
	})
	if err != nil {
		// The row was rolled back or never committed; its slot must go too
		if slotCreated {
			if rmErr := os.RemoveAll(room.SlotPath); rmErr != nil {
				log.Ctx(ctx).Warn().Err(rmErr).Str("room_id", room.ID).Msg("failed to remove orphan room slot")
			}
		}
		return nil, err
	}

	log.Ctx(ctx).Info().Str("room_id", room.ID).Msg("room created")
	return room, nil
}

// RoomExists reports whether id has a provisioned slot
func (r *SQLiteRoomRepository) RoomExists(ctx context.Context, id string) (bool, error) {
	_, err := r.ResolveSlot(ctx, id)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const getRoomQuery = `
	SELECT id, slot_path, created_at
	FROM rooms
	WHERE id = ?
`

// ResolveSlot returns the room and its slot path, or domain.ErrRoomNotFound
func (r *SQLiteRoomRepository) ResolveSlot(ctx context.Context, id string) (*domain.Room, error) {
	// Only canonical ids reach the database or the filesystem
	if !isRoomID(id) {
		return nil, domain.ErrRoomNotFound
	}

	var row roomRow
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, getRoomQuery, id).Scan(
		&row.ID,
		&row.SlotPath,
		&row.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	// A row whose directory vanished is not a usable room
	if info, err := os.Stat(row.SlotPath); err != nil || !info.IsDir() {
		return nil, domain.ErrRoomNotFound
	}

	return row.toDomain(), nil
}

func isRoomID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

// roomRow is a private struct used to scan database rows
type roomRow struct {
	ID        string       `db:"id"`
	SlotPath  string       `db:"slot_path"`
	CreatedAt sql.NullTime `db:"created_at"`
}

func (rr *roomRow) toDomain() *domain.Room {
	room := &domain.Room{
		ID:       rr.ID,
		SlotPath: rr.SlotPath,
	}
	if rr.CreatedAt.Valid {
		room.CreatedAt = rr.CreatedAt.Time
	}
	return room
}
