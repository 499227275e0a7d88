// Package memory is the in-process session and studio store used when no
// database is configured.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/podnest/studio/internal/domain"
)

// Store copies on every read and write so callers never share state.
type Store struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.ScheduledSession
	studios  map[domain.StudioID]*domain.Studio
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[domain.SessionID]*domain.ScheduledSession),
		studios:  make(map[domain.StudioID]*domain.Studio),
	}
}

func (s *Store) Save(_ context.Context, sess *domain.ScheduledSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *Store) FindByID(_ context.Context, id domain.SessionID) (*domain.ScheduledSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *Store) FindByStudio(_ context.Context, studio domain.StudioID) ([]*domain.ScheduledSession, error) {
	return s.filter(func(sess *domain.ScheduledSession) bool { return sess.StudioID == studio }), nil
}

func (s *Store) FindByStatus(_ context.Context, status domain.SessionStatus) ([]*domain.ScheduledSession, error) {
	return s.filter(func(sess *domain.ScheduledSession) bool { return sess.Status == status }), nil
}

func (s *Store) filter(keep func(*domain.ScheduledSession) bool) []*domain.ScheduledSession {
	s.mu.RLock()
	out := make([]*domain.ScheduledSession, 0)
	for _, sess := range s.sessions {
		if keep(sess) {
			out = append(out, sess.Clone())
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *domain.ScheduledSession) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func (s *Store) DeleteByID(_ context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *Store) CreateStudio(_ context.Context, st *domain.Studio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.studios[st.ID] = &cp
	return nil
}

func (s *Store) FindStudio(_ context.Context, id domain.StudioID) (*domain.Studio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.studios[id]
	if !ok {
		return nil, domain.ErrStudioNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *Store) FindStudioByInviteCode(_ context.Context, code domain.InviteCode) (*domain.Studio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.studios {
		if st.InviteCode == code {
			cp := *st
			return &cp, nil
		}
	}
	return nil, domain.ErrStudioNotFound
}
