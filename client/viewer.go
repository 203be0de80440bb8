package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PollStatus classifies the outcome of one pull.
type PollStatus int

const (
	PollSkipped PollStatus = iota
	PollFresh
	PollNotModified
	// PollHTTPError is a non-success reply other than a server error, e.g. 404.
	PollHTTPError
	// PollServerError is a 5xx reply.
	PollServerError
	// PollTransportError means the server could not be reached.
	PollTransportError
	// PollDecodeError means a fresh payload could not be rendered.
	PollDecodeError
)

func (s PollStatus) String() string {
	switch s {
	case PollFresh:
		return "fresh"
	case PollNotModified:
		return "not_modified"
	case PollHTTPError:
		return "http_error"
	case PollServerError:
		return "server_error"
	case PollTransportError:
		return "transport_error"
	case PollDecodeError:
		return "decode_error"
	default:
		return "skipped"
	}
}

// ViewerState is the phase of a viewer session.
type ViewerState int32

const (
	ViewerStopped ViewerState = iota
	ViewerIdle
	ViewerFetching
	ViewerRendering
	ViewerBackingOff
)

func (s ViewerState) String() string {
	switch s {
	case ViewerIdle:
		return "idle"
	case ViewerFetching:
		return "fetching"
	case ViewerRendering:
		return "rendering"
	case ViewerBackingOff:
		return "backing_off"
	default:
		return "stopped"
	}
}

// Backoff computes the delay before the next pull.
type Backoff struct {
	Base          time.Duration
	MaxMultiplier int
	// ErrorFloor is the minimum delay after a server, transport or decode failure.
	ErrorFloor time.Duration
}

// Next returns the delay that follows a pull with the given status, where
// unchanged is the number of consecutive not-modified replies so far.
func (b Backoff) Next(status PollStatus, unchanged int) time.Duration {
	switch status {
	case PollNotModified:
		return b.Base * time.Duration(b.multiplier(unchanged))
	case PollServerError, PollTransportError, PollDecodeError:
		if b.ErrorFloor > b.Base {
			return b.ErrorFloor
		}
		return b.Base
	default:
		return b.Base
	}
}

func (b Backoff) multiplier(unchanged int) int {
	maxMul := b.MaxMultiplier
	if maxMul < 1 {
		maxMul = 1
	}
	if unchanged >= 31 {
		return maxMul
	}
	return min(1<<unchanged, maxMul)
}

// PollState is the per-session state of a viewer.
type PollState struct {
	mu        sync.Mutex
	lastETag  string
	unchanged int

	inFlight atomic.Bool
	stopped  atomic.Bool
}

// LastETag returns the tag of the last rendered image, empty if none.
func (s *PollState) LastETag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastETag
}

// Unchanged returns the consecutive not-modified counter.
func (s *PollState) Unchanged() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unchanged
}

// PollResult is the outcome of one pull and the delay scheduled after it.
type PollResult struct {
	Status PollStatus
	Code   int
	Delay  time.Duration
}

// Viewer polls a room for its current image, backing off while it is unchanged.
type Viewer struct {
	client   *Client
	roomID   string
	renderer Renderer
	backoff  Backoff
	logger   zerolog.Logger

	state *PollState
	phase atomic.Int32
	sched Scheduler
}

// NewViewer creates a stopped viewer session for roomID.
func NewViewer(client *Client, roomID string, renderer Renderer, backoff Backoff, logger zerolog.Logger) *Viewer {
	v := &Viewer{
		client:   client,
		roomID:   roomID,
		renderer: renderer,
		backoff:  backoff,
		logger:   logger,
		state:    &PollState{},
	}
	v.state.stopped.Store(true)
	v.phase.Store(int32(ViewerIdle))
	return v
}

// PollState exposes the session state.
func (v *Viewer) PollState() *PollState {
	return v.state
}

// State returns the current phase.
func (v *Viewer) State() ViewerState {
	if s := ViewerState(v.phase.Load()); s != ViewerIdle {
		return s
	}
	if !v.sched.Running() {
		return ViewerStopped
	}
	return ViewerIdle
}

// Start resets the backoff and begins polling with an immediate first pull.
// Starting a running viewer does nothing; a loop that ended with its context
// can be started again.
func (v *Viewer) Start(ctx context.Context) {
	if !v.state.stopped.Load() && v.sched.Running() {
		return
	}
	v.state.stopped.Store(false)
	v.state.mu.Lock()
	v.state.unchanged = 0
	v.state.mu.Unlock()

	v.sched.Start(ctx, func(ctx context.Context) time.Duration {
		return v.PullOnce(ctx).Delay
	})
}

// Stop ends polling after the in-flight pull, if any, completes.
func (v *Viewer) Stop() {
	v.state.stopped.Store(true)
	v.sched.Stop()
}

// Wait blocks until the loop has stopped.
func (v *Viewer) Wait() {
	v.sched.Wait()
}

// PullOnce performs one conditional pull. It is skipped while another pull is
// in flight or the session is stopped. Errors are logged, never returned.
func (v *Viewer) PullOnce(ctx context.Context) PollResult {
	if v.state.stopped.Load() || !v.state.inFlight.CompareAndSwap(false, true) {
		return PollResult{Status: PollSkipped, Delay: v.backoff.Base}
	}
	defer func() {
		v.phase.Store(int32(ViewerIdle))
		v.state.inFlight.Store(false)
	}()

	status, code := v.pull(ctx)
	return PollResult{
		Status: status,
		Code:   code,
		Delay:  v.backoff.Next(status, v.state.Unchanged()),
	}
}

func (v *Viewer) pull(ctx context.Context) (PollStatus, int) {
	v.phase.Store(int32(ViewerFetching))
	lastETag := v.state.LastETag()

	screen, err := v.client.FetchScreen(ctx, v.roomID, lastETag)
	if err != nil {
		v.logger.Error().Err(err).Msg("pull failed")
		return PollTransportError, 0
	}

	if screen.StatusCode == http.StatusNotModified {
		v.phase.Store(int32(ViewerBackingOff))
		v.state.mu.Lock()
		v.state.unchanged++
		unchanged := v.state.unchanged
		v.state.mu.Unlock()

		v.logger.Debug().
			Str("etag", lastETag).
			Int("backoff", v.backoff.multiplier(unchanged)).
			Msg("304 not modified")
		return PollNotModified, screen.StatusCode
	}

	if screen.StatusCode >= 500 {
		v.logger.Error().Int("status", screen.StatusCode).Str("status_text", http.StatusText(screen.StatusCode)).Msg("server error")
		return PollServerError, screen.StatusCode
	}

	if screen.StatusCode < 200 || screen.StatusCode >= 300 {
		v.logger.Warn().Int("status", screen.StatusCode).Str("status_text", http.StatusText(screen.StatusCode)).Msg("pull rejected")
		return PollHTTPError, screen.StatusCode
	}

	v.phase.Store(int32(ViewerRendering))
	if err := v.renderer.Render(screen.Body); err != nil {
		if errors.Is(err, ErrDecode) {
			v.logger.Error().Err(err).Msg("frame skipped")
		} else {
			v.logger.Error().Err(err).Msg("render failed")
		}
		return PollDecodeError, screen.StatusCode
	}

	v.state.mu.Lock()
	v.state.lastETag = screen.ETag
	v.state.unchanged = 0
	v.state.mu.Unlock()

	event := v.logger.Info().Str("size", formatKB(len(screen.Body)))
	if screen.ETag == "" {
		event.Msg("image updated without etag")
	} else {
		event.Str("etag", screen.ETag).Msg("image updated")
	}
	return PollFresh, screen.StatusCode
}
