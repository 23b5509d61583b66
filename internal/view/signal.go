package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSnapshotTimeout is returned when no snapshot arrives in time.
var ErrSnapshotTimeout = errors.New("snapshot timed out")

// Signal hands snapshots from the panel to whoever waits on a node id.
// Expect must be called before the snapshot can arrive so an early delivery
// is kept.
type Signal struct {
	mu    sync.Mutex
	slots map[string]chan Snapshot
}

// NewSignal creates an empty Signal.
func NewSignal() *Signal {
	return &Signal{slots: make(map[string]chan Snapshot)}
}

// Expect registers interest in a snapshot for id.
func (s *Signal) Expect(id string) {
	s.slot(id)
}

func (s *Signal) slot(id string) chan Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.slots[id]
	if !ok {
		ch = make(chan Snapshot, 1)
		s.slots[id] = ch
	}
	return ch
}

// Deliver passes snap to its waiter. It reports false when nothing expects
// the id or a snapshot is already pending for it.
func (s *Signal) Deliver(snap Snapshot) bool {
	s.mu.Lock()
	ch, ok := s.slots[snap.NodeID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- snap:
		return true
	default:
		return false
	}
}

// Wait blocks until the snapshot for id arrives, ctx ends or timeout passes.
// A zero timeout waits on ctx alone.
func (s *Signal) Wait(ctx context.Context, id string, timeout time.Duration) (Snapshot, error) {
	ch := s.slot(id)
	defer func() {
		s.mu.Lock()
		delete(s.slots, id)
		s.mu.Unlock()
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case snap := <-ch:
		return snap, nil
	case <-expired:
		return Snapshot{NodeID: id}, fmt.Errorf("%w: %s after %s", ErrSnapshotTimeout, id, timeout)
	case <-ctx.Done():
		return Snapshot{NodeID: id}, ctx.Err()
	}
}

// Pending returns the number of ids still expected.
func (s *Signal) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
