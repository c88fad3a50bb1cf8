package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sshmcp/internal/metrics"
	"sshmcp/internal/transport"
	"sshmcp/util"
)

// Registry is the in-memory set of live sessions keyed by id.  It is
// safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *util.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// NewRegistry returns an empty registry.  Sessions it creates log
// through logger and count bytes in m; both may be nil.
func NewRegistry(logger *util.Logger, m *metrics.Collector) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Create registers a new session bound to ch under a fresh random id.
// The session starts idle with an empty buffer and lastActive = now.
func (r *Registry) Create(ch transport.Channel, info Info) *Session {
	id := uuid.NewString()
	now := r.now()

	info.ID = id
	info.CreatedAt = now
	s := newSession(ch, info, r.logger.With("session", id))
	s.metrics = r.metrics
	s.now = r.now
	s.lastActive = now

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// Get looks up id.  It does not touch the session's activity time.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes id and reports whether it was present.  Removing an
// absent id is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// List returns a snapshot of every session, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].info, out[j].info
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
