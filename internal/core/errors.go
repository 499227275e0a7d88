package core

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRejected         = errors.New("rejected")
	ErrUnknownPeer      = errors.New("unknown peer")
	ErrCapabilityDenied = errors.New("capability denied")
	ErrPeerUnreachable  = errors.New("peer unreachable")
	ErrBackpressure     = errors.New("backpressure")
	ErrInvalidPayload   = errors.New("invalid payload")
)

var (
	ErrWaitingForHost = fmt.Errorf("%w: waiting for host", ErrRejected)
	ErrSessionClosed  = fmt.Errorf("%w: session closed", ErrRejected)
)
