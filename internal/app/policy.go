package app

import (
	"github.com/podnest/studio/internal/core"
	"github.com/podnest/studio/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection whose send queue is full.
type Policy interface {
	OnBackPressure(conn *core.Connection) BackpressureAction
}

// SimplePolicy kicks every slow consumer.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*core.Connection) BackpressureAction {
	return KickMember
}

// HostFriendlyPolicy never kicks the host; the frame is dropped instead.
type HostFriendlyPolicy struct{}

func (HostFriendlyPolicy) OnBackPressure(conn *core.Connection) BackpressureAction {
	if conn.Participant.Role == domain.RoleHost {
		return DropFrame
	}
	return KickMember
}
