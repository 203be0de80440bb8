package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dfryer1193/roomshot/api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubCapturer struct {
	calls   atomic.Int32
	err     error
	payload []byte
	block   chan struct{}
}

func (s *stubCapturer) Capture(ctx context.Context) ([]byte, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

// fakeRelay records uploads and hands out one room id.
type fakeRelay struct {
	mu         sync.Mutex
	uploads    [][]byte
	rooms      atomic.Int32
	rejectPush bool
}

func (f *fakeRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/create-room":
		f.rooms.Add(1)
		json.NewEncoder(w).Encode(api.CreateRoomResponse{RoomID: "room-1"})
	case "/screenshot":
		if f.rejectPush {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Room not found"})
			return
		}
		file, _, err := r.FormFile(api.FormFieldFile)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		content, _ := io.ReadAll(file)
		f.mu.Lock()
		f.uploads = append(f.uploads, content)
		n := len(f.uploads)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(api.ScreenshotResponse{ID: "shot-" + strconv.Itoa(n), RoomID: r.FormValue(api.FormFieldRoomID)})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeRelay) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func newTestProducer(t *testing.T, relay http.Handler, capturer Capturer, roomID string) *Producer {
	t.Helper()
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)
	return NewProducer(NewClient(srv.URL, time.Second), capturer, 5*time.Millisecond, roomID, zerolog.Nop())
}

func TestProducer_RunCycleUploads(t *testing.T) {
	relay := &fakeRelay{}
	p := newTestProducer(t, relay, &stubCapturer{payload: []byte("jpeg")}, "room-1")

	require.Equal(t, CycleUploaded, p.RunCycle(context.Background()))
	require.Equal(t, 1, relay.uploadCount())
	require.Equal(t, []byte("jpeg"), relay.uploads[0])
}

func TestProducer_RunCycleFailuresAreContained(t *testing.T) {
	tests := []struct {
		name     string
		relay    *fakeRelay
		capturer *stubCapturer
		roomID   string
	}{
		{name: "capture error", relay: &fakeRelay{}, capturer: &stubCapturer{err: errors.New("camera busy")}, roomID: "room-1"},
		{name: "rejected upload", relay: &fakeRelay{rejectPush: true}, capturer: &stubCapturer{payload: []byte("jpeg")}, roomID: "room-1"},
		{name: "no room", relay: &fakeRelay{}, capturer: &stubCapturer{payload: []byte("jpeg")}, roomID: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProducer(t, tt.relay, tt.capturer, tt.roomID)
			require.Equal(t, CycleFailed, p.RunCycle(context.Background()))
			require.Equal(t, 0, tt.relay.uploadCount())
			require.Equal(t, ProducerStopped, p.State())
		})
	}
}

func TestProducer_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProducer(NewClient(url, time.Second), &stubCapturer{payload: []byte("jpeg")}, time.Millisecond, "room-1", zerolog.Nop())
	require.Equal(t, CycleFailed, p.RunCycle(context.Background()))
}

func TestProducer_SkipsWhileInFlight(t *testing.T) {
	capturer := &stubCapturer{payload: []byte("jpeg"), block: make(chan struct{})}
	p := newTestProducer(t, &fakeRelay{}, capturer, "room-1")
	ctx := context.Background()

	first := make(chan CycleOutcome)
	go func() { first <- p.RunCycle(ctx) }()

	require.Eventually(t, func() bool { return capturer.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, ProducerCapturing, p.State())
	require.Equal(t, CycleSkipped, p.RunCycle(ctx))

	close(capturer.block)
	require.Equal(t, CycleUploaded, <-first)
	require.Equal(t, int32(1), capturer.calls.Load())
}

func TestProducer_StartCreatesRoomOnce(t *testing.T) {
	relay := &fakeRelay{}
	p := newTestProducer(t, relay, &stubCapturer{payload: []byte("jpeg")}, "")
	ctx := context.Background()

	require.NoError(t, p.Start(ctx))
	require.Equal(t, "room-1", p.RoomID())
	require.Eventually(t, func() bool { return relay.uploadCount() >= 2 }, 2*time.Second, time.Millisecond)

	p.Stop()
	p.Wait()
	require.Equal(t, ProducerStopped, p.State())
	stoppedAt := relay.uploadCount()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, stoppedAt, relay.uploadCount())

	require.NoError(t, p.Start(ctx))
	require.Eventually(t, func() bool { return relay.uploadCount() > stoppedAt }, 2*time.Second, time.Millisecond)
	p.Stop()
	p.Wait()

	require.Equal(t, int32(1), relay.rooms.Load(), "room must be reused across restarts")
}

func TestProducer_KeepsRunningAfterFailures(t *testing.T) {
	capturer := &stubCapturer{err: errors.New("no frame")}
	p := newTestProducer(t, &fakeRelay{}, capturer, "room-1")

	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return capturer.calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	p.Stop()
	p.Wait()
}
