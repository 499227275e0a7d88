// Package domain contains the studio entities and their transition rules.
package domain

import (
	"fmt"
	"strings"
)

const (
	MaxParticipantIDLen = 254
	MaxDisplayNameLen   = 64
)

type ParticipantID string

type Role string

const (
	RoleHost   Role = "HOST"
	RoleCoHost Role = "CO_HOST"
	RoleGuest  Role = "GUEST"
)

func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleCoHost, RoleGuest:
		return true
	}
	return false
}

// CanModerate reports whether the role may change other participants' permissions.
func (r Role) CanModerate() bool { return r == RoleHost || r == RoleCoHost }

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidParticipant, s)
	}
	return r, nil
}

// Capabilities are the media permissions granted to a participant.
type Capabilities struct {
	Mic         bool `json:"canMic"`
	Camera      bool `json:"canCamera"`
	ScreenShare bool `json:"canScreenShare"`
}

func FullCapabilities() Capabilities {
	return Capabilities{Mic: true, Camera: true, ScreenShare: true}
}

// Clamp never returns a flag that is not set in grant.
func (c Capabilities) Clamp(grant Capabilities) Capabilities {
	return Capabilities{
		Mic:         c.Mic && grant.Mic,
		Camera:      c.Camera && grant.Camera,
		ScreenShare: c.ScreenShare && grant.ScreenShare,
	}
}

// Participant is an already-authenticated identity: a user id for hosts,
// the invited email for guests.
type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"displayName"`
	Role        Role          `json:"role"`
}

func NewParticipant(id, displayName string, role Role) (Participant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Participant{}, fmt.Errorf("%w: empty id", ErrInvalidParticipant)
	}
	if len(id) > MaxParticipantIDLen {
		return Participant{}, fmt.Errorf("%w: id too long", ErrInvalidParticipant)
	}
	if !role.Valid() {
		return Participant{}, fmt.Errorf("%w: unknown role %q", ErrInvalidParticipant, role)
	}
	p := Participant{ID: ParticipantID(id), Role: role}
	if err := p.SetDisplayName(displayName); err != nil {
		return Participant{}, err
	}
	return p, nil
}

// SetDisplayName falls back to the participant id when name is blank.
func (p *Participant) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		name = string(p.ID)
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	p.DisplayName = name
	return nil
}

// NormalizeEmail is the key guests are matched by.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
