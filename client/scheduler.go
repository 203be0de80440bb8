package client

import (
	"context"
	"sync"
	"time"
)

// Task performs one unit of work and returns how long to wait before the next one.
type Task func(ctx context.Context) time.Duration

// Scheduler runs a Task repeatedly on one goroutine. A stop request is honored
// only between units of work; it never interrupts a running Task.
type Scheduler struct {
	mu       sync.Mutex
	alive    bool
	stopping bool
	wake     chan struct{}
	done     chan struct{}
}

// Start launches the loop, running the first unit immediately. If the loop is
// still finishing a unit after Stop, the pending stop is withdrawn instead.
func (s *Scheduler) Start(ctx context.Context, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.alive {
		s.stopping = false
		// Drop the wake-up Stop left behind so the current wait runs its full delay
		select {
		case <-s.wake:
		default:
		}
		return
	}
	s.alive = true
	s.stopping = false
	s.wake = make(chan struct{}, 1)
	s.done = make(chan struct{})

	go s.loop(ctx, task, s.wake, s.done)
}

// Stop asks the loop to end at its next idle boundary and returns immediately.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive {
		return
	}
	s.stopping = true
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until the loop has ended. It returns at once if no loop runs.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	alive := s.alive
	s.mu.Unlock()

	if alive {
		<-done
	}
}

// Running reports whether the loop goroutine is alive.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *Scheduler) loop(ctx context.Context, task Task, wake <-chan struct{}, done chan struct{}) {
	for {
		if s.exitIfStopping(ctx, done) {
			return
		}

		delay := task(ctx)

		if s.exitIfStopping(ctx, done) {
			return
		}

		s.sleep(ctx, delay, wake)
	}
}

// sleep waits for delay, returning early only for a stop that is still pending
// or a cancelled ctx.
func (s *Scheduler) sleep(ctx context.Context, delay time.Duration, wake <-chan struct{}) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		case <-wake:
			if s.isStopping() {
				return
			}
		}
	}
}

func (s *Scheduler) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Scheduler) exitIfStopping(ctx context.Context, done chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopping && ctx.Err() == nil {
		return false
	}
	s.alive = false
	s.stopping = false
	close(done)
	return true
}
