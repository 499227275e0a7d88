package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/podnest/studio/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
	limit  int
}

func (f *fakeSignal) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrPeerUnreachable
	}
	if f.limit > 0 && len(f.frames) >= f.limit {
		return ErrBackpressure
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSignal) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// capAt makes the queue full once it holds n more frames.
func (f *fakeSignal) capAt(n int) {
	f.mu.Lock()
	f.limit = len(f.frames) + n
	f.mu.Unlock()
}

func (f *fakeSignal) messages(t *testing.T, typ MessageType) []Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, fr := range f.frames {
		var m Message
		require.NoError(t, json.Unmarshal(fr, &m))
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

type fakeGrants struct {
	mu     sync.Mutex
	grants map[domain.SessionID]map[domain.ParticipantID]Grant
}

func newFakeGrants() *fakeGrants {
	return &fakeGrants{grants: make(map[domain.SessionID]map[domain.ParticipantID]Grant)}
}

func (g *fakeGrants) set(session domain.SessionID, who domain.ParticipantID, grant Grant) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.grants[session] == nil {
		g.grants[session] = make(map[domain.ParticipantID]Grant)
	}
	g.grants[session][who] = grant
}

func (g *fakeGrants) ResolveGrant(_ context.Context, session domain.SessionID, who domain.ParticipantID) (Grant, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grant, ok := g.grants[session][who]
	if !ok {
		return Grant{}, domain.ErrNotInvited
	}
	return grant, nil
}

func participant(id string, role domain.Role) domain.Participant {
	return domain.Participant{ID: domain.ParticipantID(id), DisplayName: id, Role: role}
}

func admit(t *testing.T, reg *Registry, studio domain.StudioID, p domain.Participant, caps domain.Capabilities) (*Connection, *fakeSignal) {
	t.Helper()
	sig := &fakeSignal{}
	reg.OpenOrGet(studio)
	conn, err := reg.Admit(context.Background(), AdmitRequest{
		StudioID:     studio,
		Participant:  p,
		Capabilities: caps,
		Signal:       sig,
	})
	require.NoError(t, err)
	return conn, sig
}

func liveGate(session domain.SessionID, waitingRoom bool) Gate {
	return Gate{SessionID: session, Status: domain.StatusLive, WaitingRoom: waitingRoom}
}
