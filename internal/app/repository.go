package app

import (
	"context"

	"github.com/podnest/studio/internal/domain"
)

// SessionRepository is the durable store of scheduled sessions. Guests are
// saved and deleted together with their session.
type SessionRepository interface {
	Save(ctx context.Context, s *domain.ScheduledSession) error
	// FindByID returns domain.ErrSessionNotFound when absent.
	FindByID(ctx context.Context, id domain.SessionID) (*domain.ScheduledSession, error)
	// FindByStudio orders by start time, earliest first.
	FindByStudio(ctx context.Context, studio domain.StudioID) ([]*domain.ScheduledSession, error)
	FindByStatus(ctx context.Context, status domain.SessionStatus) ([]*domain.ScheduledSession, error)
	DeleteByID(ctx context.Context, id domain.SessionID) error
}

type StudioDirectory interface {
	CreateStudio(ctx context.Context, s *domain.Studio) error
	// FindStudio returns domain.ErrStudioNotFound when absent.
	FindStudio(ctx context.Context, id domain.StudioID) (*domain.Studio, error)
	FindStudioByInviteCode(ctx context.Context, code domain.InviteCode) (*domain.Studio, error)
}

// Invite is everything a mailer needs to invite one guest.
type Invite struct {
	Recipient     string
	RecipientName string
	SessionTitle  string
	StartTime     string
	JoinURL       string
}

type Mailer interface {
	SendSessionInvite(ctx context.Context, inv Invite) error
}

// Recorder starts the external recording pipeline for a session.
type Recorder interface {
	StartRecording(ctx context.Context, s *domain.ScheduledSession) error
}
