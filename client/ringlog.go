package client

import (
	"bytes"
	"sync"
)

// DefaultLogCapacity is how many lines a RingLog keeps when none is given.
const DefaultLogCapacity = 10

// RingLog keeps the most recent log lines, evicting the oldest past its capacity.
// It is an io.Writer so it can sit behind a zerolog writer.
type RingLog struct {
	mu       sync.Mutex
	capacity int
	lines    []string
}

func NewRingLog(capacity int) *RingLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &RingLog{capacity: capacity, lines: make([]string, 0, capacity)}
}

// Write stores every non-empty line of p.
func (r *RingLog) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range bytes.Split(p, []byte{'\n'}) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		r.add(string(line))
	}
	return len(p), nil
}

// Add stores a single line.
func (r *RingLog) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(line)
}

func (r *RingLog) add(line string) {
	if len(r.lines) == r.capacity {
		copy(r.lines, r.lines[1:])
		r.lines = r.lines[:len(r.lines)-1]
	}
	r.lines = append(r.lines, line)
}

// Lines returns the retained lines, oldest first.
func (r *RingLog) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
