package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-converter/internal/logger"
)

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Registry is an in-memory store of sessions keyed by ID.
// Sessions are lost on restart, and idle ones are dropped by Evict.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create starts a new idle session owned by userID.
func (r *Registry) Create(userID string) *Session {
	s := New(userID)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s
}

// Get returns the session with the given ID and marks it active.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Touch(time.Now())
	return s, nil
}

// Delete removes a session.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of stored sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Evict removes sessions last active before cutoff and returns how many were
// dropped. Sessions still processing are kept.
func (r *Registry) Evict(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, s := range r.sessions {
		if s.State() == StateProcessing || !s.LastActive().Before(cutoff) {
			continue
		}
		delete(r.sessions, id)
		n++
	}
	return n
}

// Sweep evicts sessions idle for longer than ttl every interval until ctx
// is done.
func (r *Registry) Sweep(ctx context.Context, interval, ttl time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Evict(now.Add(-ttl)); n > 0 {
				log.Info().Int("evicted", n).Int("remaining", r.Len()).Msg("Evicted idle sessions")
			}
		}
	}
}
