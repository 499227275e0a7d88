package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/podnest/studio/internal/domain"
	"github.com/rs/zerolog/log"
)

// Relay routes signaling messages between connections of the same room.
// It keeps no history: a message is enqueued to whoever is in the room at
// send time and nowhere else.
type Relay struct {
	reg    *Registry
	grants GrantResolver
}

func NewRelay(reg *Registry, grants GrantResolver) *Relay {
	return &Relay{reg: reg, grants: grants}
}

// Relay forwards msg from the sender to one connection, or to every other
// connection of the room when to is empty. The payload is forwarded verbatim;
// envelope fields are stamped from the sender.
func (rl *Relay) Relay(ctx context.Context, from *Connection, to ConnectionID, msg Message) (PublishResult, error) {
	if msg.Type == "" || msg.Type.Reserved() {
		return PublishResult{}, fmt.Errorf("%w: type %q", ErrInvalidPayload, msg.Type)
	}
	room, ok := rl.reg.room(from.StudioID)
	if !ok || !room.contains(from.ID) {
		return PublishResult{}, fmt.Errorf("%w: sender %s", ErrUnknownPeer, from.ID)
	}
	if to == from.ID {
		return PublishResult{}, fmt.Errorf("%w: cannot target self", ErrUnknownPeer)
	}
	if err := rl.validate(ctx, from, msg); err != nil {
		return PublishResult{}, err
	}

	msg.StudioID = from.StudioID
	msg.From = from.ID
	msg.Participant = from.Participant.ID
	msg.To = to
	f, err := msg.Frame()
	if err != nil {
		return PublishResult{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if to == "" {
		return room.broadcast(from.ID, f), nil
	}
	res, err := room.sendTo(to, f)
	if err != nil {
		log.Debug().Err(err).Str("module", "core.relay").Str("from", string(from.ID)).Str("to", string(to)).Str("type", string(msg.Type)).Msg("directed send failed")
	}
	return res, err
}

func (rl *Relay) validate(ctx context.Context, from *Connection, msg Message) error {
	switch msg.Type {
	case TypeOffer:
		return validateDescription(msg.Payload, webrtc.SDPTypeOffer)
	case TypeAnswer:
		return validateDescription(msg.Payload, webrtc.SDPTypeAnswer)
	case TypeICECandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Payload, &cand); err != nil {
			return fmt.Errorf("%w: ice candidate: %v", ErrInvalidPayload, err)
		}
		return nil
	case TypeMuteState:
		return rl.validateMute(ctx, from, msg.Payload)
	case TypePermissionChange:
		role, _, err := rl.standing(ctx, from)
		if err != nil {
			return err
		}
		if !role.CanModerate() {
			return fmt.Errorf("%w: %s cannot change permissions", ErrCapabilityDenied, role)
		}
		var p PermissionChangePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("%w: permission change: %v", ErrInvalidPayload, err)
		}
		return nil
	}
	return nil
}

func validateDescription(raw json.RawMessage, want webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("%w: session description: %v", ErrInvalidPayload, err)
	}
	if desc.Type != webrtc.SDPTypeUnknown && desc.Type != want {
		return fmt.Errorf("%w: sdp type %s, want %s", ErrInvalidPayload, desc.Type, want)
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: empty sdp", ErrInvalidPayload)
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: sdp: %v", ErrInvalidPayload, err)
	}
	return nil
}

func (rl *Relay) validateMute(ctx context.Context, from *Connection, raw json.RawMessage) error {
	var p MuteStatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: mute state: %v", ErrInvalidPayload, err)
	}
	switch p.Track {
	case TrackMic, TrackCamera, TrackScreen:
	default:
		return fmt.Errorf("%w: unknown track %q", ErrInvalidPayload, p.Track)
	}
	if !p.Enabled {
		return nil
	}
	_, caps, err := rl.standing(ctx, from)
	if err != nil {
		return err
	}
	allowed := map[Track]bool{
		TrackMic:    caps.Mic,
		TrackCamera: caps.Camera,
		TrackScreen: caps.ScreenShare,
	}[p.Track]
	if !allowed {
		return fmt.Errorf("%w: %s may not enable %s", ErrCapabilityDenied, from.Participant.ID, p.Track)
	}
	return nil
}

// standing is the sender's role and capabilities right now. While the studio
// has a LIVE session they come from that session's ledger, whatever the
// connection was admitted under, so a guest who joined early is held to the
// grant and host updates apply to the next message.
func (rl *Relay) standing(ctx context.Context, from *Connection) (domain.Role, domain.Capabilities, error) {
	if from.Participant.Role == domain.RoleHost {
		return domain.RoleHost, domain.FullCapabilities(), nil
	}
	gate, bound := rl.reg.GateOf(from.StudioID)
	if !bound || !gate.Live() || rl.grants == nil {
		return from.Participant.Role, from.Caps, nil
	}
	g, err := rl.grants.ResolveGrant(ctx, gate.SessionID, from.Participant.ID)
	switch {
	case errors.Is(err, domain.ErrNotInvited):
		return domain.RoleGuest, domain.Capabilities{}, nil
	case err != nil:
		return "", domain.Capabilities{}, fmt.Errorf("resolve grant: %w", err)
	}
	return g.role(), g.Capabilities, nil
}
