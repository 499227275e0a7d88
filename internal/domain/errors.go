package domain

import "errors"

var (
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrNotInvited         = errors.New("not invited")
	ErrSessionNotFound    = errors.New("session not found")
	ErrStudioNotFound     = errors.New("studio not found")
	ErrInvalidSession     = errors.New("invalid session")
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrForbidden          = errors.New("forbidden")
)
