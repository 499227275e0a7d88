package core

import (
	"context"

	"github.com/podnest/studio/internal/domain"
)

// Gate is the registry-side view of the session bound to a studio. It is
// written by the session state machine and read on every admission.
type Gate struct {
	SessionID        domain.SessionID
	Status           domain.SessionStatus
	WaitingRoom      bool
	MuteGuestsOnJoin bool
}

func GateFor(s *domain.ScheduledSession) Gate {
	return Gate{
		SessionID:        s.ID,
		Status:           s.Status,
		WaitingRoom:      s.Flags.WaitingRoomEnabled,
		MuteGuestsOnJoin: s.Flags.MuteGuestsOnJoin,
	}
}

func (g Gate) Live() bool   { return g.Status == domain.StatusLive }
func (g Gate) Closed() bool { return g.Status.Terminal() }

// Grant is a guest's ledger entry as seen by admission and validation.
type Grant struct {
	Capabilities domain.Capabilities
	Invitation   domain.InvitationStatus
	Role         domain.Role
}

// role is what the ledger makes the holder: CO_HOST or GUEST, never HOST.
func (g Grant) role() domain.Role {
	if g.Role == domain.RoleCoHost {
		return domain.RoleCoHost
	}
	return domain.RoleGuest
}

// GrantResolver returns domain.ErrNotInvited when the participant has no
// guest record in the session.
type GrantResolver interface {
	ResolveGrant(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (Grant, error)
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo      int
	Dropped     []*Connection
	Unreachable []ConnectionID
}
