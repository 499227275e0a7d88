package core

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/podnest/studio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

func msg(t *testing.T, typ MessageType, payload any) Message {
	t.Helper()
	m, err := NewMessage("", typ, payload)
	require.NoError(t, err)
	return m
}

func TestBroadcastPreservesSenderOrder(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	relay := NewRelay(reg, nil)
	a, sigA := admit(t, reg, "s1", participant("a", domain.RoleHost), domain.Capabilities{})
	_, sigB := admit(t, reg, "s1", participant("b", domain.RoleGuest), domain.Capabilities{})
	_, sigC := admit(t, reg, "s1", participant("c", domain.RoleGuest), domain.Capabilities{})
	_, sigOther := admit(t, reg, "s2", participant("d", domain.RoleGuest), domain.Capabilities{})

	const n = 50
	for i := 0; i < n; i++ {
		res, err := relay.Relay(context.Background(), a, "", msg(t, "chat", map[string]int{"seq": i}))
		require.NoError(t, err)
		assert.Equal(t, 2, res.SentTo)
	}

	for _, sig := range []*fakeSignal{sigB, sigC} {
		got := sig.messages(t, "chat")
		require.Len(t, got, n)
		for i, m := range got {
			var p struct{ Seq int }
			require.NoError(t, json.Unmarshal(m.Payload, &p))
			assert.Equal(t, i, p.Seq)
			assert.Equal(t, a.ID, m.From)
			assert.Equal(t, domain.ParticipantID("a"), m.Participant)
			assert.Equal(t, domain.StudioID("s1"), m.StudioID)
		}
	}
	assert.Empty(t, sigA.messages(t, "chat"), "sender does not receive its own broadcast")
	assert.Empty(t, sigOther.messages(t, "chat"), "other rooms are isolated")
}

func TestDirectedRelay(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	relay := NewRelay(reg, nil)
	a, _ := admit(t, reg, "s1", participant("a", domain.RoleHost), domain.Capabilities{})
	b, sigB := admit(t, reg, "s1", participant("b", domain.RoleGuest), domain.Capabilities{})
	_, sigC := admit(t, reg, "s1", participant("c", domain.RoleGuest), domain.Capabilities{})
	outsider, _ := admit(t, reg, "s2", participant("d", domain.RoleGuest), domain.Capabilities{})

	offer := map[string]string{"type": "offer", "sdp": testSDP}
	res, err := relay.Relay(context.Background(), a, b.ID, msg(t, TypeOffer, offer))
	require.NoError(t, err)
	assert.Equal(t, 1, res.SentTo)

	got := sigB.messages(t, TypeOffer)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].To)
	assert.JSONEq(t, fmt.Sprintf(`{"type":"offer","sdp":%q}`, testSDP), string(got[0].Payload), "payload is forwarded verbatim")
	assert.Empty(t, sigC.messages(t, TypeOffer))

	_, err = relay.Relay(context.Background(), a, outsider.ID, msg(t, TypeOffer, offer))
	assert.ErrorIs(t, err, ErrUnknownPeer)
	_, err = relay.Relay(context.Background(), a, "nobody", msg(t, TypeOffer, offer))
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

func TestGuestWithoutMicCannotUnmute(t *testing.T) {
	grants := newFakeGrants()
	grants.set("sess-1", "g@x.com", Grant{
		Capabilities: domain.Capabilities{Camera: true},
		Invitation:   domain.InvitationAccepted,
		Role:         domain.RoleGuest,
	})
	reg := NewRegistry(grants)
	relay := NewRelay(reg, grants)
	reg.BindSession("s1", liveGate("sess-1", false))
	_, hostSig := admit(t, reg, "s1", participant("host-1", domain.RoleHost), domain.Capabilities{})
	guest, _ := admit(t, reg, "s1", participant("g@x.com", domain.RoleGuest), domain.FullCapabilities())

	_, err := relay.Relay(context.Background(), guest, "", msg(t, TypeMuteState, MuteStatePayload{Track: TrackMic, Enabled: true}))
	require.ErrorIs(t, err, ErrCapabilityDenied)
	assert.Empty(t, hostSig.messages(t, TypeMuteState), "denied payload is not forwarded")

	_, err = relay.Relay(context.Background(), guest, "", msg(t, TypeMuteState, MuteStatePayload{Track: TrackMic, Enabled: false}))
	require.NoError(t, err, "muting is always allowed")
	_, err = relay.Relay(context.Background(), guest, "", msg(t, TypeMuteState, MuteStatePayload{Track: TrackCamera, Enabled: true}))
	require.NoError(t, err)
	assert.Len(t, hostSig.messages(t, TypeMuteState), 2)

	// the ledger is consulted on every message
	grants.set("sess-1", "g@x.com", Grant{
		Capabilities: domain.Capabilities{Mic: true},
		Invitation:   domain.InvitationAccepted,
		Role:         domain.RoleGuest,
	})
	_, err = relay.Relay(context.Background(), guest, "", msg(t, TypeMuteState, MuteStatePayload{Track: TrackMic, Enabled: true}))
	assert.NoError(t, err)
}

func TestMuteStateWithoutSessionUsesAdmittedFlags(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	relay := NewRelay(reg, nil)
	_, _ = admit(t, reg, "s1", participant("host-1", domain.RoleHost), domain.Capabilities{})
	guest, _ := admit(t, reg, "s1", participant("g", domain.RoleGuest), domain.Capabilities{Mic: true})

	_, err := relay.Relay(context.Background(), guest, "", msg(t, TypeMuteState, MuteStatePayload{Track: TrackMic, Enabled: true}))
	assert.NoError(t, err)
	_, err = relay.Relay(context.Background(), guest, "", msg(t, TypeMuteState, MuteStatePayload{Track: TrackScreen, Enabled: true}))
	assert.ErrorIs(t, err, ErrCapabilityDenied)
	_, err = relay.Relay(context.Background(), guest, "", msg(t, TypeMuteState, map[string]any{"track": "tuba", "enabled": true}))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPermissionChangeRequiresModerator(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	relay := NewRelay(reg, nil)
	host, _ := admit(t, reg, "s1", participant("host-1", domain.RoleHost), domain.Capabilities{})
	co, _ := admit(t, reg, "s1", participant("co", domain.RoleCoHost), domain.Capabilities{})
	guest, guestSig := admit(t, reg, "s1", participant("g", domain.RoleGuest), domain.Capabilities{})

	change := PermissionChangePayload{ParticipantID: "g", Capabilities: domain.Capabilities{Mic: true}}
	for _, from := range []*Connection{host, co} {
		_, err := relay.Relay(context.Background(), from, guest.ID, msg(t, TypePermissionChange, change))
		assert.NoError(t, err)
	}
	assert.Len(t, guestSig.messages(t, TypePermissionChange), 2)

	_, err := relay.Relay(context.Background(), guest, "", msg(t, TypePermissionChange, change))
	assert.ErrorIs(t, err, ErrCapabilityDenied)
}

func TestClosedRecipientIsSkipped(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	relay := NewRelay(reg, nil)
	a, _ := admit(t, reg, "s1", participant("a", domain.RoleHost), domain.Capabilities{})
	b, sigB := admit(t, reg, "s1", participant("b", domain.RoleGuest), domain.Capabilities{})
	_, sigC := admit(t, reg, "s1", participant("c", domain.RoleGuest), domain.Capabilities{})
	sigB.Close()

	res, err := relay.Relay(context.Background(), a, "", msg(t, "chat", nil))
	require.NoError(t, err)
	assert.Equal(t, []ConnectionID{b.ID}, res.Unreachable)
	assert.Equal(t, 1, res.SentTo)
	assert.Len(t, sigC.messages(t, "chat"), 1)

	_, err = relay.Relay(context.Background(), a, b.ID, msg(t, "chat", nil))
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}

func TestFullQueueIsReportedAsDropped(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	relay := NewRelay(reg, nil)
	a, _ := admit(t, reg, "s1", participant("a", domain.RoleHost), domain.Capabilities{})
	b, sigB := admit(t, reg, "s1", participant("b", domain.RoleGuest), domain.Capabilities{})
	sigB.capAt(1)

	res, err := relay.Relay(context.Background(), a, "", msg(t, "chat", nil))
	require.NoError(t, err)
	assert.Empty(t, res.Dropped)

	res, err = relay.Relay(context.Background(), a, "", msg(t, "chat", nil))
	require.NoError(t, err)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, b.ID, res.Dropped[0].ID)
}

func TestRelayRejectsMalformedSignaling(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	relay := NewRelay(reg, nil)
	a, _ := admit(t, reg, "s1", participant("a", domain.RoleHost), domain.Capabilities{})
	b, sigB := admit(t, reg, "s1", participant("b", domain.RoleGuest), domain.Capabilities{})

	tests := []struct {
		name string
		msg  Message
	}{
		{"garbage sdp", msg(t, TypeOffer, map[string]string{"type": "offer", "sdp": "not an sdp"})},
		{"empty sdp", msg(t, TypeAnswer, map[string]string{"type": "answer"})},
		{"answer sent as offer", msg(t, TypeOffer, map[string]string{"type": "answer", "sdp": testSDP})},
		{"candidate not an object", msg(t, TypeICECandidate, "candidate:1")},
		{"reserved type", msg(t, TypePeerJoined, nil)},
		{"missing type", msg(t, "", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := relay.Relay(context.Background(), a, b.ID, tt.msg)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}

	cand := map[string]any{"candidate": "candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host", "sdpMid": "0", "sdpMLineIndex": 0}
	_, err := relay.Relay(context.Background(), a, b.ID, msg(t, TypeICECandidate, cand))
	require.NoError(t, err)
	assert.Len(t, sigB.messages(t, TypeICECandidate), 1)
}

func TestEvictedSenderCannotRelay(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	relay := NewRelay(reg, nil)
	a, _ := admit(t, reg, "s1", participant("a", domain.RoleHost), domain.Capabilities{})
	b, sigB := admit(t, reg, "s1", participant("b", domain.RoleGuest), domain.Capabilities{})
	_, _ = admit(t, reg, "s1", participant("c", domain.RoleGuest), domain.Capabilities{})

	require.True(t, reg.Evict(a, ReasonKicked))
	_, err := relay.Relay(context.Background(), a, b.ID, msg(t, "chat", nil))
	assert.ErrorIs(t, err, ErrUnknownPeer)
	assert.Empty(t, sigB.messages(t, "chat"))
}

func TestEarlyJoinerFollowsLedgerOnceLive(t *testing.T) {
	grants := newFakeGrants()
	grants.set("sess-1", "g@x.com", Grant{Invitation: domain.InvitationPending, Role: domain.RoleGuest})
	reg := NewRegistry(grants)
	relay := NewRelay(reg, grants)
	_, _ = admit(t, reg, "s1", participant("host-1", domain.RoleHost), domain.Capabilities{})
	guest, _ := admit(t, reg, "s1", participant("g@x.com", domain.RoleGuest), domain.FullCapabilities())

	mic := MuteStatePayload{Track: TrackMic, Enabled: true}
	_, err := relay.Relay(context.Background(), guest, "", msg(t, TypeMuteState, mic))
	require.NoError(t, err, "no session yet: admitted flags apply")

	reg.BindSession("s1", liveGate("sess-1", false))
	_, err = relay.Relay(context.Background(), guest, "", msg(t, TypeMuteState, mic))
	assert.ErrorIs(t, err, ErrCapabilityDenied)
}

func TestCoHostClaimNeedsGrantOnceLive(t *testing.T) {
	reg := NewRegistry(newFakeGrants())
	relay := NewRelay(reg, newFakeGrants())
	co, _ := admit(t, reg, "s1", participant("co@x.com", domain.RoleCoHost), domain.Capabilities{})
	guest, _ := admit(t, reg, "s1", participant("g@x.com", domain.RoleGuest), domain.Capabilities{})
	reg.BindSession("s1", liveGate("sess-1", false))

	change := PermissionChangePayload{ParticipantID: "g@x.com", Capabilities: domain.Capabilities{Mic: true}}
	_, err := relay.Relay(context.Background(), co, guest.ID, msg(t, TypePermissionChange, change))
	assert.ErrorIs(t, err, ErrCapabilityDenied)
}
