package app

import (
	"context"
	"fmt"

	"github.com/podnest/studio/internal/core"
	"github.com/podnest/studio/internal/domain"
)

// Ledger answers "what may this guest do" from the latest saved session.
// Nothing is cached, so a capability update applies to the next lookup.
type Ledger struct {
	sessions SessionRepository
}

func NewLedger(sessions SessionRepository) *Ledger {
	return &Ledger{sessions: sessions}
}

func (l *Ledger) ResolveCapabilities(ctx context.Context, session domain.SessionID, email string) (domain.Capabilities, error) {
	g, err := l.guest(ctx, session, email)
	if err != nil {
		return domain.Capabilities{}, err
	}
	return g.Capabilities, nil
}

// ResolveGrant implements core.GrantResolver. Guests are identified by email.
func (l *Ledger) ResolveGrant(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (core.Grant, error) {
	g, err := l.guest(ctx, session, string(participant))
	if err != nil {
		return core.Grant{}, err
	}
	return core.Grant{
		Capabilities: g.Capabilities,
		Invitation:   g.InvitationStatus,
		Role:         g.Role,
	}, nil
}

func (l *Ledger) guest(ctx context.Context, session domain.SessionID, email string) (domain.SessionGuest, error) {
	s, err := l.sessions.FindByID(ctx, session)
	if err != nil {
		return domain.SessionGuest{}, fmt.Errorf("ledger: %w", err)
	}
	g, ok := s.Guest(email)
	if !ok {
		return domain.SessionGuest{}, fmt.Errorf("%w: %s", domain.ErrNotInvited, domain.NormalizeEmail(email))
	}
	return *g, nil
}
