package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ProducerState is the phase of a producer session.
type ProducerState int32

const (
	ProducerStopped ProducerState = iota
	ProducerIdle
	ProducerCapturing
	ProducerUploading
)

func (s ProducerState) String() string {
	switch s {
	case ProducerIdle:
		return "idle"
	case ProducerCapturing:
		return "capturing"
	case ProducerUploading:
		return "uploading"
	default:
		return "stopped"
	}
}

// CycleOutcome reports what one producer cycle did.
type CycleOutcome int

const (
	CycleSkipped CycleOutcome = iota
	CycleUploaded
	CycleFailed
)

// Producer captures an image on a fixed interval and pushes it to its room.
type Producer struct {
	client   *Client
	capturer Capturer
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	roomID string

	phase    atomic.Int32
	inFlight atomic.Bool
	sched    Scheduler
}

// NewProducer creates a stopped producer. roomID may be empty; Start then creates a room.
func NewProducer(client *Client, capturer Capturer, interval time.Duration, roomID string, logger zerolog.Logger) *Producer {
	p := &Producer{
		client:   client,
		capturer: capturer,
		interval: interval,
		logger:   logger,
		roomID:   roomID,
	}
	p.phase.Store(int32(ProducerIdle))
	return p
}

// RoomID returns the room this producer pushes to, empty before one exists.
func (p *Producer) RoomID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID
}

// Start begins the capture loop, creating a room first if the producer has none.
// The room is kept across stop and start.
func (p *Producer) Start(ctx context.Context) error {
	if p.RoomID() == "" {
		roomID, err := p.client.CreateRoom(ctx)
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		p.mu.Lock()
		p.roomID = roomID
		p.mu.Unlock()
		p.logger.Info().Str("room_id", roomID).Msg("room created")
	}

	p.sched.Start(ctx, func(ctx context.Context) time.Duration {
		p.RunCycle(ctx)
		return p.interval
	})
	return nil
}

// Stop ends the loop after the current cycle, if any, completes.
func (p *Producer) Stop() {
	p.sched.Stop()
}

// Wait blocks until the loop has stopped.
func (p *Producer) Wait() {
	p.sched.Wait()
}

// State returns the current phase.
func (p *Producer) State() ProducerState {
	if s := ProducerState(p.phase.Load()); s != ProducerIdle {
		return s
	}
	if !p.sched.Running() {
		return ProducerStopped
	}
	return ProducerIdle
}

// RunCycle captures and uploads one image. A call made while another cycle is
// in flight is skipped. Failures are logged and never propagate.
func (p *Producer) RunCycle(ctx context.Context) CycleOutcome {
	if !p.inFlight.CompareAndSwap(false, true) {
		return CycleSkipped
	}
	defer func() {
		p.phase.Store(int32(ProducerIdle))
		p.inFlight.Store(false)
	}()

	roomID := p.RoomID()
	if roomID == "" {
		p.logger.Warn().Msg("room not created")
		return CycleFailed
	}

	p.phase.Store(int32(ProducerCapturing))
	blob, err := p.capturer.Capture(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("capture failed")
		return CycleFailed
	}

	p.phase.Store(int32(ProducerUploading))
	resp, err := p.client.PushScreenshot(ctx, roomID, blob)
	if err != nil {
		p.logger.Error().Err(err).Str("room_id", roomID).Msg("screenshot upload failed")
		return CycleFailed
	}

	p.logger.Info().
		Str("id", resp.ID).
		Str("size", formatKB(len(blob))).
		Msg("screenshot saved")
	return CycleUploaded
}

func formatKB(n int) string {
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}
