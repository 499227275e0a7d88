package core

import (
	"time"

	"github.com/podnest/studio/internal/domain"
)

type ConnectionID string

type EvictReason string

const (
	ReasonDisconnected     EvictReason = "Disconnected"
	ReasonLeft             EvictReason = "Left"
	ReasonKicked           EvictReason = "Kicked"
	ReasonSlowConsumer     EvictReason = "SlowConsumer"
	ReasonSessionCompleted EvictReason = "SessionCompleted"
	ReasonSessionCancelled EvictReason = "SessionCancelled"
	ReasonWaitingForHost   EvictReason = "WaitingForHost"
)

// Connection is one admitted participant transport. It is owned by the room
// it was admitted to and is immutable after admission.
type Connection struct {
	ID          ConnectionID
	StudioID    domain.StudioID
	Participant domain.Participant
	Caps        domain.Capabilities
	// SessionID is the LIVE session the connection was admitted under, if any.
	// Caps and role of a connection admitted earlier are re-read from the
	// ledger by the relay once a session is LIVE.
	SessionID  domain.SessionID
	AdmittedAt time.Time

	out SignalConnection
}

func (c *Connection) Signal() SignalConnection { return c.out }

func (c *Connection) View() ParticipantView {
	return ParticipantView{
		ConnectionID:  c.ID,
		ParticipantID: c.Participant.ID,
		DisplayName:   c.Participant.DisplayName,
		Role:          c.Participant.Role,
		Capabilities:  c.Caps,
		AdmittedAt:    c.AdmittedAt,
	}
}

// ParticipantView is a read-only view for APIs (no transport fields).
type ParticipantView struct {
	ConnectionID  ConnectionID         `json:"connectionId"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	DisplayName   string               `json:"displayName"`
	Role          domain.Role          `json:"role"`
	Capabilities  domain.Capabilities  `json:"capabilities"`
	AdmittedAt    time.Time            `json:"admittedAt"`
}
