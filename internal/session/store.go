// Package session keeps per-browser form state in memory.
package session

import (
	"sync"
	"time"

	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Store maps session IDs to form state. Each session has its own lock, so
// requests from one browser are serialized while different sessions only
// share the map lookup.
type Store struct {
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	state    domain.SessionState
	lastSeen time.Time
	removed  bool // swept from the map; guarded by mu
}

// NewStore creates a store whose sessions expire after ttl without use.
func NewStore(ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		ttl:      ttl,
		clock:    clock,
		metrics:  metrics,
		sessions: make(map[string]*entry),
	}
}

// Create starts an empty session and returns its ID. Idle sessions are
// swept first.
func (s *Store) Create() string {
	s.Sweep()

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &entry{lastSeen: s.clock.Now()}
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.ActiveSessions.Set(float64(n))
	return id
}

// Exists reports whether id names a live session.
func (s *Store) Exists(id string) bool {
	return s.lookup(id) != nil
}

// Get returns a snapshot of the session state.
func (s *Store) Get(id string) (domain.SessionState, bool) {
	e := s.lookup(id)
	if e == nil {
		return domain.SessionState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return domain.SessionState{}, false
	}
	e.lastSeen = s.clock.Now()
	return e.state, true
}

// Update replaces the session state with fn's result. The session stays
// locked while fn runs.
func (s *Store) Update(id string, fn func(domain.SessionState) domain.SessionState) (domain.SessionState, bool) {
	return s.update(s.lookup(id), fn)
}

// update reports false when e was swept between lookup and locking, so
// fn's result is never written to a session that no longer exists.
func (s *Store) update(e *entry, fn func(domain.SessionState) domain.SessionState) (domain.SessionState, bool) {
	if e == nil {
		return domain.SessionState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return domain.SessionState{}, false
	}
	e.state = fn(e.state)
	e.lastSeen = s.clock.Now()
	return e.state, true
}

// Len returns the number of sessions held, including idle ones not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops idle sessions and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	removed := 0
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			continue // in use
		}
		idle := s.expired(e, now)
		e.removed = idle
		e.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.ActiveSessions.Set(float64(n))
	return removed
}

func (s *Store) lookup(id string) *entry {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if e.mu.TryLock() {
		idle := s.expired(e, s.clock.Now())
		e.removed = idle
		e.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
			return nil
		}
	}
	return e
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && !now.Before(e.lastSeen.Add(s.ttl))
}
