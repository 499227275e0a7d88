package domain

import "fmt"

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationDeclined InvitationStatus = "DECLINED"
)

type SessionGuest struct {
	Email            string           `json:"email"`
	Name             string           `json:"name"`
	Role             Role             `json:"role"`
	Capabilities     Capabilities     `json:"capabilities"`
	InvitationStatus InvitationStatus `json:"invitationStatus"`
}

// Respond moves a PENDING invitation to ACCEPTED or DECLINED. Both are final.
func (g *SessionGuest) Respond(accept bool) error {
	if g.InvitationStatus != InvitationPending {
		return fmt.Errorf("%w: invitation already %s", ErrInvalidTransition, g.InvitationStatus)
	}
	if accept {
		g.InvitationStatus = InvitationAccepted
	} else {
		g.InvitationStatus = InvitationDeclined
	}
	return nil
}
