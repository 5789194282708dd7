package storage

import "sync/atomic"

// Sequencer hands out strictly increasing IDs.
// IDs taken by a unit that later rolls back are not reused.
type Sequencer struct {
	next atomic.Uint64
}

// NewSequencer starts after the given value.
// On a fresh store start = 0, on reopen start = highest persisted ID.
func NewSequencer(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next ID
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued ID
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}
