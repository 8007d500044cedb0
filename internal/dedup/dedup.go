// Package dedup collapses repeated webhook deliveries using time-boxed sets
// of identifiers.
package dedup

import (
	"sync"
	"time"
)

// Store is the contract webhook handlers depend on. Set is the in-memory
// implementation; anything with TTL semantics can stand in for it.
type Store interface {
	// Has reports whether id was added within the retention window.
	Has(id string) bool
	// Add records id as seen now. Adding a present id refreshes it.
	Add(id string)
	// Seen reports whether id was already present and records it, as one
	// atomic step.
	Seen(id string) bool
}

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

// Set is a set of identifiers whose entries expire after a fixed window.
// Expired entries behave as absent even before they are physically evicted.
// Safe for concurrent use.
type Set struct {
	mu      sync.Mutex
	name    string
	window  time.Duration
	now     Clock
	entries map[string]time.Time
}

// SetOpts holds parameters for creating a Set.
type SetOpts struct {
	Name   string        // label used in logs and metrics (e.g. "slack_events")
	Window time.Duration // retention window; must be positive
	Clock  Clock         // defaults to time.Now
}

// NewSet creates an empty Set. A non-positive window is treated as one
// millisecond so that nothing is retained indefinitely.
func NewSet(opts SetOpts) *Set {
	window := opts.Window
	if window <= 0 {
		window = time.Millisecond
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Set{
		name:    opts.Name,
		window:  window,
		now:     clock,
		entries: make(map[string]time.Time),
	}
}

// Name returns the label the set was created with.
func (s *Set) Name() string { return s.name }

// Window returns the retention window.
func (s *Set) Window() time.Duration { return s.window }

// Has reports whether id was added within the trailing window.
func (s *Set) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(id, s.now())
}

// Add records id at the current time.
func (s *Set) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = s.now()
}

// Seen returns true if id is live in the set. Otherwise it records id and
// returns false. Concurrent callers with the same id get exactly one false.
func (s *Set) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.liveLocked(id, now) {
		return true
	}
	s.entries[id] = now
	return false
}

// Len returns the number of live entries.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, at := range s.entries {
		if now.Sub(at) <= s.window {
			n++
		}
	}
	return n
}

// Sweep physically removes expired entries and returns how many were removed.
func (s *Set) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, at := range s.entries {
		if now.Sub(at) > s.window {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// liveLocked reports whether id is within the window, evicting it lazily
// when it is not. Caller must hold s.mu.
func (s *Set) liveLocked(id string, now time.Time) bool {
	at, ok := s.entries[id]
	if !ok {
		return false
	}
	if now.Sub(at) > s.window {
		delete(s.entries, id)
		return false
	}
	return true
}

var _ Store = (*Set)(nil)
