package signal

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/podnest/studio/internal/core"
	"github.com/podnest/studio/internal/domain"
)

// memberSignal is what the registry holds for one admission. A voluntary
// leave detaches it without closing the socket so the client can join again.
type memberSignal struct {
	ws *WsSignalConn

	mu       sync.Mutex
	detached bool
	keepOpen bool
}

func (m *memberSignal) TrySend(f core.Frame) error {
	m.mu.Lock()
	detached := m.detached
	m.mu.Unlock()
	if detached {
		return core.ErrPeerUnreachable
	}
	return m.ws.TrySend(f)
}

func (m *memberSignal) Close() {
	m.mu.Lock()
	m.detached = true
	keep := m.keepOpen
	m.mu.Unlock()
	if !keep {
		m.ws.Close()
	}
}

func (m *memberSignal) detachOnly() {
	m.mu.Lock()
	m.keepOpen = true
	m.mu.Unlock()
}

type joinPayload struct {
	DisplayName  string               `json:"displayName"`
	Capabilities *domain.Capabilities `json:"capabilities"`
}

type RejectedPayload struct {
	Reason string `json:"reason"`
}

func (ctl *SignalWSController) joined(cl *client) bool {
	if cl.conn == nil {
		return false
	}
	if _, ok := ctl.Orch.Registry.Lookup(cl.studio, cl.conn.ID); ok {
		return true
	}
	// evicted by someone else (kick, session end)
	cl.conn, cl.member = nil, nil
	return false
}

func (ctl *SignalWSController) handleJoin(cl *client, raw json.RawMessage) {
	if ctl.joined(cl) {
		ctl.sendError(cl, "already_joined", "")
		return
	}
	var p joinPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			cl.log.Debug().Err(err).Msg("bad join payload")
			ctl.sendError(cl, "bad_payload", "")
			return
		}
	}
	who := cl.who
	if p.DisplayName != "" {
		if err := who.SetDisplayName(p.DisplayName); err != nil {
			ctl.sendError(cl, "invalid_name", err.Error())
			return
		}
	}
	caps := domain.FullCapabilities()
	if p.Capabilities != nil {
		caps = *p.Capabilities
	}

	member := &memberSignal{ws: cl.ws}
	conn, err := ctl.Orch.Join(cl.ctx, core.AdmitRequest{
		StudioID:     cl.studio,
		Participant:  who,
		Capabilities: caps,
		Signal:       member,
	})
	switch {
	case errors.Is(err, core.ErrWaitingForHost):
		cl.log.Info().Msg("join deferred: waiting for host")
		ctl.send(cl, core.TypeWaitingForHost, RejectedPayload{Reason: err.Error()})
		return
	case errors.Is(err, core.ErrRejected), errors.Is(err, domain.ErrStudioNotFound), errors.Is(err, core.ErrRoomNotFound):
		cl.log.Info().Err(err).Msg("join rejected")
		ctl.send(cl, core.TypeRejected, RejectedPayload{Reason: err.Error()})
		return
	case err != nil:
		cl.log.Error().Err(err).Msg("join failed")
		ctl.sendError(cl, "join_failed", "")
		return
	}
	cl.conn, cl.member = conn, member
	cl.log = cl.log.With().Str("conn", string(conn.ID)).Logger()
	cl.log.Info().Str("role", string(conn.Participant.Role)).Msg("join")
}

// handleLeave leaves the room but keeps the socket open.
func (ctl *SignalWSController) handleLeave(cl *client) {
	if !ctl.joined(cl) {
		ctl.sendError(cl, "not_joined", "")
		return
	}
	cl.log.Info().Msg("leave")
	cl.member.detachOnly()
	ctl.leave(cl, core.ReasonLeft)
}

func (ctl *SignalWSController) leave(cl *client, reason core.EvictReason) {
	if cl.conn == nil {
		return
	}
	ctl.Orch.Leave(cl.conn, reason)
	cl.conn, cl.member = nil, nil
}
