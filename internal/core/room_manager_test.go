package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/podnest/studio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitWithoutSessionIsUnconditional(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	caps := domain.Capabilities{Mic: true, Camera: true}

	host, sig := admit(t, reg, "s1", participant("host-1", domain.RoleHost), caps)
	guest, _ := admit(t, reg, "s1", participant("g@x.com", domain.RoleGuest), caps)

	assert.Equal(t, caps, host.Caps)
	assert.Equal(t, caps, guest.Caps, "no session means no clamping")
	assert.Empty(t, guest.SessionID)

	welcome := sig.messages(t, TypeWelcome)
	require.Len(t, welcome, 1)
	var p WelcomePayload
	require.NoError(t, json.Unmarshal(welcome[0].Payload, &p))
	assert.Equal(t, host.ID, p.Self.ConnectionID)
	assert.Empty(t, p.Roster)
}

func TestAdmitWithoutRoom(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	_, err := reg.Admit(context.Background(), AdmitRequest{
		StudioID:    "missing",
		Participant: participant("host-1", domain.RoleHost),
		Signal:      &fakeSignal{},
	})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestWaitingRoomRejectsGuestBeforeHost(t *testing.T) {
	grants := newFakeGrants()
	grants.set("sess-1", "g@x.com", Grant{Invitation: domain.InvitationPending, Role: domain.RoleGuest})
	reg := NewRegistry(grants)
	reg.BindSession("s1", liveGate("sess-1", true))

	reg.OpenOrGet("s1")
	_, err := reg.Admit(context.Background(), AdmitRequest{
		StudioID:    "s1",
		Participant: participant("g@x.com", domain.RoleGuest),
		Signal:      &fakeSignal{},
	})

	require.ErrorIs(t, err, ErrWaitingForHost)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 0, reg.ParticipantCount("s1"))
}

func TestWaitingRoomAdmitsGuestOnceHostPresent(t *testing.T) {
	grants := newFakeGrants()
	grants.set("sess-1", "g@x.com", Grant{
		Capabilities: domain.Capabilities{Mic: true},
		Invitation:   domain.InvitationPending,
		Role:         domain.RoleGuest,
	})
	reg := NewRegistry(grants)
	reg.BindSession("s1", liveGate("sess-1", true))

	host, hostSig := admit(t, reg, "s1", participant("host-1", domain.RoleHost), domain.FullCapabilities())
	guest, guestSig := admit(t, reg, "s1", participant("g@x.com", domain.RoleGuest), domain.FullCapabilities())

	assert.Equal(t, domain.Capabilities{Mic: true}, guest.Caps, "requested flags are clamped to the grant")
	assert.Equal(t, domain.SessionID("sess-1"), guest.SessionID)

	joined := hostSig.messages(t, TypePeerJoined)
	require.Len(t, joined, 1)
	var p PeerPayload
	require.NoError(t, json.Unmarshal(joined[0].Payload, &p))
	assert.Equal(t, domain.ParticipantID("g@x.com"), p.ParticipantID)
	assert.Equal(t, domain.RoleGuest, p.Role)
	assert.Equal(t, domain.Capabilities{Mic: true}, p.Capabilities)

	assert.Empty(t, guestSig.messages(t, TypePeerJoined), "the joiner is not notified about itself")
	var w WelcomePayload
	require.NoError(t, json.Unmarshal(guestSig.messages(t, TypeWelcome)[0].Payload, &w))
	require.Len(t, w.Roster, 1)
	assert.Equal(t, host.ID, w.Roster[0].ConnectionID)
}

func TestAcceptedGuestSkipsWaitingRoom(t *testing.T) {
	grants := newFakeGrants()
	grants.set("sess-1", "g@x.com", Grant{Invitation: domain.InvitationAccepted, Role: domain.RoleGuest})
	reg := NewRegistry(grants)
	reg.BindSession("s1", liveGate("sess-1", true))

	_, _ = admit(t, reg, "s1", participant("g@x.com", domain.RoleGuest), domain.Capabilities{})
	assert.Equal(t, 1, reg.ParticipantCount("s1"))
}

func TestUninvitedGuestIsListenOnly(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	reg.BindSession("s1", liveGate("sess-1", false))

	conn, _ := admit(t, reg, "s1", participant("stranger@x.com", domain.RoleGuest), domain.FullCapabilities())
	assert.Equal(t, domain.Capabilities{}, conn.Caps)
}

func TestGrantPromotesCoHost(t *testing.T) {
	grants := newFakeGrants()
	grants.set("sess-1", "co@x.com", Grant{Invitation: domain.InvitationPending, Role: domain.RoleCoHost})
	reg := NewRegistry(grants)
	reg.BindSession("s1", liveGate("sess-1", true))

	conn, _ := admit(t, reg, "s1", participant("co@x.com", domain.RoleGuest), domain.Capabilities{})
	assert.Equal(t, domain.RoleCoHost, conn.Participant.Role)
}

func TestCloseSessionEvictsEveryone(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	reg.BindSession("s1", liveGate("sess-1", false))
	_, sigA := admit(t, reg, "s1", participant("a@x.com", domain.RoleGuest), domain.Capabilities{})
	_, sigB := admit(t, reg, "s1", participant("b@x.com", domain.RoleGuest), domain.Capabilities{})

	n := reg.CloseSession("s1", Gate{SessionID: "sess-1", Status: domain.StatusCancelled}, ReasonSessionCancelled)
	require.Equal(t, 2, n)

	for _, sig := range []*fakeSignal{sigA, sigB} {
		assert.True(t, sig.isClosed())
		evicted := sig.messages(t, TypeEvicted)
		require.Len(t, evicted, 1)
		var p EvictedPayload
		require.NoError(t, json.Unmarshal(evicted[0].Payload, &p))
		assert.Equal(t, ReasonSessionCancelled, p.Reason)
	}
	assert.Equal(t, 0, reg.RoomCount())
	_, err := reg.ListParticipants("s1")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	reg.OpenOrGet("s1")
	_, err = reg.Admit(context.Background(), AdmitRequest{
		StudioID:    "s1",
		Participant: participant("host-1", domain.RoleHost),
		Signal:      &fakeSignal{},
	})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 0, reg.RoomCount(), "rejected admission does not leave an empty room behind")

	reg.ReopenStudio("s1")
	_, _ = admit(t, reg, "s1", participant("host-1", domain.RoleHost), domain.Capabilities{})
}

func TestEvictNotifiesAndDestroysEmptyRoom(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	a, sigA := admit(t, reg, "s1", participant("a", domain.RoleHost), domain.Capabilities{})
	b, sigB := admit(t, reg, "s1", participant("b", domain.RoleGuest), domain.Capabilities{})

	require.True(t, reg.Evict(b, ReasonLeft))
	assert.False(t, reg.Evict(b, ReasonLeft), "second eviction is a no-op")
	assert.True(t, sigB.isClosed())

	left := sigA.messages(t, TypePeerLeft)
	require.Len(t, left, 1)
	var p PeerPayload
	require.NoError(t, json.Unmarshal(left[0].Payload, &p))
	assert.Equal(t, b.ID, p.ConnectionID)
	assert.Equal(t, ReasonLeft, p.Reason)

	require.True(t, reg.Evict(a, ReasonDisconnected))
	assert.Equal(t, 0, reg.RoomCount())
}

func TestLiveSessionPinsEmptyRoom(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	var hooked []domain.SessionID
	reg.SetEmptyRoomHook(func(_ domain.StudioID, s domain.SessionID) { hooked = append(hooked, s) })
	reg.BindSession("s1", liveGate("sess-1", false))
	assert.Equal(t, 1, reg.RoomCount(), "binding a LIVE session opens the room")

	host, _ := admit(t, reg, "s1", participant("host-1", domain.RoleHost), domain.Capabilities{})
	require.True(t, reg.Evict(host, ReasonDisconnected))

	assert.Equal(t, 1, reg.RoomCount())
	assert.Equal(t, []domain.SessionID{"sess-1"}, hooked)

	reg.ClearSession("s1", "sess-1")
	assert.Equal(t, 0, reg.RoomCount())
}

func TestListParticipantsInAdmissionOrder(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	var ids []ConnectionID
	for _, name := range []string{"a", "b", "c", "d"} {
		c, _ := admit(t, reg, "s1", participant(name, domain.RoleGuest), domain.Capabilities{})
		ids = append(ids, c.ID)
	}
	c, ok := reg.Lookup("s1", ids[1])
	require.True(t, ok)
	reg.Evict(c, ReasonLeft)

	roster, err := reg.ListParticipants("s1")
	require.NoError(t, err)
	got := make([]ConnectionID, 0, len(roster))
	for _, v := range roster {
		got = append(got, v.ConnectionID)
	}
	assert.Equal(t, []ConnectionID{ids[0], ids[2], ids[3]}, got)
}

func TestConcurrentAdmitEvictKeepsCount(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	reg.BindSession("s1", liveGate("sess-1", false))

	const workers = 32
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		admits int
		evicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := reg.Admit(context.Background(), AdmitRequest{
				StudioID:    "s1",
				Participant: participant("host", domain.RoleHost),
				Signal:      &fakeSignal{},
			})
			if err != nil {
				return
			}
			mu.Lock()
			admits++
			mu.Unlock()
			if i%2 == 0 {
				// evicting twice must only count once
				first := reg.Evict(conn, ReasonLeft)
				second := reg.Evict(conn, ReasonLeft)
				mu.Lock()
				if first {
					evicts++
				}
				if second {
					evicts++
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers, admits)
	assert.Equal(t, workers/2, evicts)
	assert.Equal(t, admits-evicts, reg.ParticipantCount("s1"))
}

func TestGrantDecidesRoleUnderLiveGate(t *testing.T) {
	grants := newFakeGrants()
	grants.set("sess-1", "g@x.com", Grant{Invitation: domain.InvitationAccepted, Role: domain.RoleGuest})
	reg := NewRegistry(grants)
	reg.BindSession("s1", liveGate("sess-1", false))

	invited, _ := admit(t, reg, "s1", participant("g@x.com", domain.RoleCoHost), domain.Capabilities{})
	assert.Equal(t, domain.RoleGuest, invited.Participant.Role)
	stranger, _ := admit(t, reg, "s1", participant("x@x.com", domain.RoleCoHost), domain.Capabilities{})
	assert.Equal(t, domain.RoleGuest, stranger.Participant.Role)
}

func TestSettleSessionHoldsPendingGuests(t *testing.T) {
	grants := newFakeGrants()
	grants.set("sess-1", "a@x.com", Grant{Invitation: domain.InvitationPending, Role: domain.RoleGuest})
	grants.set("sess-1", "b@x.com", Grant{Invitation: domain.InvitationAccepted, Role: domain.RoleGuest})
	grants.set("sess-1", "co@x.com", Grant{Invitation: domain.InvitationPending, Role: domain.RoleCoHost})
	reg := NewRegistry(grants)
	_, sigA := admit(t, reg, "s1", participant("a@x.com", domain.RoleGuest), domain.Capabilities{})
	_, sigB := admit(t, reg, "s1", participant("b@x.com", domain.RoleGuest), domain.Capabilities{})
	_, sigCo := admit(t, reg, "s1", participant("co@x.com", domain.RoleGuest), domain.Capabilities{})

	assert.Equal(t, 0, reg.SettleSession(context.Background(), "s1"), "no gate, nothing to settle")

	reg.BindSession("s1", liveGate("sess-1", true))
	assert.Equal(t, 1, reg.SettleSession(context.Background(), "s1"))
	assert.True(t, sigA.isClosed())
	evicted := sigA.messages(t, TypeEvicted)
	require.Len(t, evicted, 1)
	var p EvictedPayload
	require.NoError(t, json.Unmarshal(evicted[0].Payload, &p))
	assert.Equal(t, ReasonWaitingForHost, p.Reason)
	assert.False(t, sigB.isClosed())
	assert.False(t, sigCo.isClosed())
}
