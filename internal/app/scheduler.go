package app

import (
	"sync"
	"time"

	"github.com/podnest/studio/internal/domain"
)

// Scheduler keeps at most one pending timer per session.
type Scheduler struct {
	now  func() time.Time
	fire func(domain.SessionID)

	mu     sync.Mutex
	timers map[domain.SessionID]*time.Timer
	closed bool
}

func NewScheduler(now func() time.Time, fire func(domain.SessionID)) *Scheduler {
	return &Scheduler{
		now:    now,
		fire:   fire,
		timers: make(map[domain.SessionID]*time.Timer),
	}
}

// Arm replaces any pending timer for id. A time in the past fires at once.
func (s *Scheduler) Arm(id domain.SessionID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[id] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, id)
		s.mu.Unlock()
		s.fire(id)
	})
	s.timers[id] = t
}

func (s *Scheduler) Disarm(id domain.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) Pending(id domain.SessionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
