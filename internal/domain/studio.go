package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const inviteCodeLen = 8

type (
	StudioID   string
	InviteCode string
)

type Studio struct {
	ID         StudioID      `json:"id"`
	Name       string        `json:"name"`
	OwnerID    ParticipantID `json:"ownerId"`
	InviteCode InviteCode    `json:"inviteCode"`
	CreatedAt  time.Time     `json:"createdAt"`
}

func NewStudio(name string, owner ParticipantID, now time.Time) (*Studio, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: studio name is empty", ErrInvalidSession)
	}
	return &Studio{
		ID:         StudioID(uuid.NewString()),
		Name:       name,
		OwnerID:    owner,
		InviteCode: NewInviteCode(),
		CreatedAt:  now,
	}, nil
}

func NewInviteCode() InviteCode {
	return InviteCode(uuid.NewString()[:inviteCodeLen])
}

// JoinURL is the link sent to invited guests.
func (s *Studio) JoinURL(base string) string {
	return strings.TrimRight(base, "/") + "/join/" + string(s.InviteCode)
}
