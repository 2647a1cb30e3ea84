package protocol

import (
	"sync/atomic"

	"github.com/aerodrop/aerodrop/internal/manifest"
)

// Session is the per-peer record threaded through every transition: the
// negotiated manifest, cursor into it, current phase, and the epoch that
// invalidates stale producer loops after a cancel or resume restart. All
// fields except epoch are owned by exactly one goroutine (the session's
// event loop) and are not safe for concurrent access. Epoch crosses into
// the producer loop's own goroutine, so it is updated and read
// atomically.
type Session struct {
	Manifest       manifest.Manifest
	FileIndex      int
	BytesDelivered int64
	Phase          Phase
	FailReason     FailReason
	Completed      map[int]bool

	epoch atomic.Uint64
}

// NewSession starts a fresh session at Idle with an empty completion set.
func NewSession() *Session {
	return &Session{Completed: make(map[int]bool)}
}

// Epoch returns the current epoch. Safe to call from any goroutine.
func (s *Session) Epoch() uint64 {
	return s.epoch.Load()
}

// BumpEpoch increments the epoch and returns the new value. Call this
// whenever a producer loop is (re)started or invalidated: the loop
// tagged with the prior value must exit at its next suspension point.
func (s *Session) BumpEpoch() uint64 {
	return s.epoch.Add(1)
}

// MarkComplete records file index i as fully delivered and acknowledged.
func (s *Session) MarkComplete(i int) {
	s.Completed[i] = true
}

// LowestIncomplete returns the smallest file index not yet marked
// complete, and false if every file in the manifest is complete.
func (s *Session) LowestIncomplete() (int, bool) {
	for i := range s.Manifest.Files {
		if !s.Completed[i] {
			return i, true
		}
	}
	return 0, false
}

// Fail transitions the session to PhaseFailed with reason, unless it is
// already in a terminal phase.
func (s *Session) Fail(reason FailReason) {
	if s.Phase.Terminal() {
		return
	}
	s.Phase = PhaseFailed
	s.FailReason = reason
}
