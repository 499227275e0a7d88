package domain

import (
	"fmt"
	"slices"
	"time"
)

type SessionID string

type SessionStatus string

const (
	StatusUpcoming  SessionStatus = "UPCOMING"
	StatusLive      SessionStatus = "LIVE"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusCancelled SessionStatus = "CANCELLED"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	StatusUpcoming: {StatusLive, StatusCancelled},
	StatusLive:     {StatusCompleted, StatusCancelled},
}

func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s SessionStatus) CanTransition(to SessionStatus) bool {
	return slices.Contains(sessionTransitions[s], to)
}

type RecordingType string

const (
	RecordingAudio RecordingType = "AUDIO"
	RecordingVideo RecordingType = "VIDEO"
	RecordingLive  RecordingType = "LIVE"
)

func (t RecordingType) Valid() bool {
	switch t {
	case RecordingAudio, RecordingVideo, RecordingLive:
		return true
	}
	return false
}

// SessionFlags toggle behaviour around the LIVE transition and admission.
type SessionFlags struct {
	AutoStartStudio        bool `json:"autoStartStudio"`
	AutoStartRecording     bool `json:"autoStartRecording"`
	WaitingRoomEnabled     bool `json:"waitingRoomEnabled"`
	MuteGuestsOnJoin       bool `json:"muteGuestsOnJoin"`
	AITranscriptionEnabled bool `json:"aiTranscriptionEnabled"`
}

// ScheduledSession owns its guests; dropping the session drops them.
type ScheduledSession struct {
	ID               SessionID      `json:"id"`
	StudioID         StudioID       `json:"studioId"`
	HostID           ParticipantID  `json:"hostId"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	StartTime        time.Time      `json:"startTime"`
	ExpectedDuration string         `json:"expectedDuration,omitempty"`
	RecordingType    RecordingType  `json:"recordingType"`
	Flags            SessionFlags   `json:"flags"`
	Status           SessionStatus  `json:"status"`
	Guests           []SessionGuest `json:"guests"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// Transition applies one state-machine step or returns ErrInvalidTransition
// leaving the session untouched.
func (s *ScheduledSession) Transition(to SessionStatus) error {
	if !s.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	return nil
}

func (s *ScheduledSession) Guest(email string) (*SessionGuest, bool) {
	key := NormalizeEmail(email)
	for i := range s.Guests {
		if s.Guests[i].Email == key {
			return &s.Guests[i], true
		}
	}
	return nil, false
}

// AddGuest appends a PENDING invitation; emails are unique per session.
func (s *ScheduledSession) AddGuest(g SessionGuest) error {
	g.Email = NormalizeEmail(g.Email)
	if g.Email == "" {
		return fmt.Errorf("%w: guest email is empty", ErrInvalidSession)
	}
	if _, dup := s.Guest(g.Email); dup {
		return fmt.Errorf("%w: duplicate guest %s", ErrInvalidSession, g.Email)
	}
	if g.Role == "" {
		g.Role = RoleGuest
	}
	if g.Role != RoleGuest && g.Role != RoleCoHost {
		return fmt.Errorf("%w: guest role %q", ErrInvalidSession, g.Role)
	}
	if g.Name == "" {
		g.Name = g.Email
	}
	g.InvitationStatus = InvitationPending
	s.Guests = append(s.Guests, g)
	return nil
}

func (s *ScheduledSession) Validate() error {
	if s.Title == "" {
		return fmt.Errorf("%w: title is empty", ErrInvalidSession)
	}
	if s.StudioID == "" {
		return fmt.Errorf("%w: studio is empty", ErrInvalidSession)
	}
	if s.StartTime.IsZero() {
		return fmt.Errorf("%w: start time is empty", ErrInvalidSession)
	}
	if !s.RecordingType.Valid() {
		return fmt.Errorf("%w: recording type %q", ErrInvalidSession, s.RecordingType)
	}
	return nil
}

func (s *ScheduledSession) Clone() *ScheduledSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Guests = slices.Clone(s.Guests)
	return &cp
}
