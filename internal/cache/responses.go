package cache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Responses is an in-memory store for raw provider response bodies. It
// satisfies the forecast client's response cache.
type Responses struct {
	lru *LRU[[]byte]
}

// NewResponses creates a response store holding at most maxEntries bodies,
// each fresh for ttl.
func NewResponses(maxEntries int, ttl time.Duration, clock clockwork.Clock) *Responses {
	return &Responses{lru: NewLRU[[]byte](maxEntries, ttl, clock)}
}

func (r *Responses) Get(_ context.Context, key string) ([]byte, bool, error) {
	body, ok := r.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), body...), true, nil
}

func (r *Responses) Put(_ context.Context, key string, body []byte) error {
	r.lru.Put(key, append([]byte(nil), body...))
	return nil
}

// CheckReadiness always succeeds; memory is always available.
func (r *Responses) CheckReadiness(_ context.Context) error {
	return nil
}
