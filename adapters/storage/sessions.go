package storage

import (
	"context"
	"sync"
	"time"

	"car-edition/core/workflow"
	"car-edition/internal/errors"
)

// SessionStore keeps estimator sessions in memory.
// Sessions are copied on the way in and out.
type SessionStore struct {
	sessions map[string]*workflow.Session
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a session store. Sessions idle longer than ttl
// are treated as missing; zero keeps them forever.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*workflow.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *SessionStore) Save(ctx context.Context, session *workflow.Session) error {
	if session == nil || session.ID == "" {
		return errors.Validation("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := session.Clone()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now().UTC()
	}
	s.sessions[c.ID] = c
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*workflow.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok || s.expired(session) {
		return nil, errors.NotFound("session", id)
	}
	return session.Clone(), nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired or not
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// PurgeExpired drops idle sessions and returns how many were removed
func (s *SessionStore) PurgeExpired() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RunJanitor purges expired sessions every interval until ctx is done
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PurgeExpired()
		}
	}
}

func (s *SessionStore) expired(session *workflow.Session) bool {
	return s.ttl > 0 && s.now().Sub(session.UpdatedAt) > s.ttl
}

var _ workflow.SessionStore = (*SessionStore)(nil)
