package service

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/katakuxiko/kbagent/internal/store"
)

// Sessions keeps live sessions in memory with a sliding expiry. An expired
// session has its index reset so persistent backends drop its vectors.
type Sessions struct {
	cache    *cache.Cache
	mu       sync.Mutex
	p        *Pipeline
	newIndex store.Factory
}

func NewSessions(p *Pipeline, newIndex store.Factory, ttl time.Duration) *Sessions {
	cleanup := ttl / 6
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(id string, v interface{}) {
		if err := v.(*Session).Reset(context.Background()); err != nil {
			p.Log.Warn("failed to reset evicted session", zap.String("session", id), zap.Error(err))
			return
		}
		p.Log.Info("session expired", zap.String("session", id))
	})
	return &Sessions{cache: c, p: p, newIndex: newIndex}
}

// Get returns a live session and extends its lifetime.
func (m *Sessions) Get(id string) (*Session, bool) {
	x, found := m.cache.Get(id)
	if !found {
		return nil, false
	}
	m.cache.Set(id, x, cache.DefaultExpiration)
	return x.(*Session), true
}

// GetOrCreate returns the session for id, creating an empty one when id is
// unknown or expired. created reports whether a new session was made.
func (m *Sessions) GetOrCreate(id string) (s *Session, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.Get(id); ok {
		return s, false
	}
	// an expired entry is still stored; evict it so its index gets reset
	// before a new session takes the id
	m.cache.DeleteExpired()
	s = NewSession(id, m.p, m.newIndex(id))
	m.cache.Set(id, s, cache.DefaultExpiration)
	m.p.Log.Info("session created", zap.String("session", id))
	return s, true
}

// Delete drops a session immediately, resetting its index.
func (m *Sessions) Delete(id string) { m.cache.Delete(id) }

func (m *Sessions) Count() int { return m.cache.ItemCount() }
