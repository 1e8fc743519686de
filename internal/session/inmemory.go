package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps sessions in process memory for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session)}
}

func (s *InMemoryStore) Insert(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = clone(sess)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(sess), nil
}

func (s *InMemoryStore) SetStatus(_ context.Context, id string, status Status, at time.Time, endedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Status = status
	sess.LastActivityAt = at
	if endedAt != nil {
		t := *endedAt
		sess.EndedAt = &t
	}
	return nil
}

func (s *InMemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.LastActivityAt = at
	return nil
}

func (s *InMemoryStore) ListUnfinished(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.Status == StatusPending || sess.Status == StatusActive {
			out = append(out, clone(sess))
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func clone(s *Session) *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Config.Extra != nil {
		extra := make(map[string]any, len(s.Config.Extra))
		for k, v := range s.Config.Extra {
			extra[k] = v
		}
		c.Config.Extra = extra
	}
	return &c
}
