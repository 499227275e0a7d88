package core

import (
	"encoding/json"
	"fmt"

	"github.com/podnest/studio/internal/domain"
)

type MessageType string

// Client-originated signaling types. Anything else that is not reserved is
// relayed as an extension type.
const (
	TypeOffer            MessageType = "OFFER"
	TypeAnswer           MessageType = "ANSWER"
	TypeICECandidate     MessageType = "ICE_CANDIDATE"
	TypeMuteState        MessageType = "MUTE_STATE"
	TypePermissionChange MessageType = "PERMISSION_CHANGE"
)

// Server-originated types.
const (
	TypePeerJoined       MessageType = "peer-joined"
	TypePeerLeft         MessageType = "peer-left"
	TypeWelcome          MessageType = "welcome"
	TypeEvicted          MessageType = "evicted"
	TypeWaitingForHost   MessageType = "waiting-for-host"
	TypeRejected         MessageType = "rejected"
	TypeRecordingStarted MessageType = "recording-started"
	TypeError            MessageType = "error"
	TypePong             MessageType = "pong"
)

var reservedTypes = map[MessageType]struct{}{
	TypePeerJoined:       {},
	TypePeerLeft:         {},
	TypeWelcome:          {},
	TypeEvicted:          {},
	TypeWaitingForHost:   {},
	TypeRejected:         {},
	TypeRecordingStarted: {},
	TypeError:            {},
	TypePong:             {},
}

// Reserved types can only be produced by the server.
func (t MessageType) Reserved() bool {
	_, ok := reservedTypes[t]
	return ok
}

// Message is the envelope delivered on studio/{studioId}/signal.
// From and Participant are always stamped by the server.
type Message struct {
	StudioID    domain.StudioID      `json:"studioId"`
	Type        MessageType          `json:"type"`
	From        ConnectionID         `json:"from,omitempty"`
	Participant domain.ParticipantID `json:"participantId,omitempty"`
	To          ConnectionID         `json:"to,omitempty"`
	Payload     json.RawMessage      `json:"payload,omitempty"`
}

func NewMessage(studio domain.StudioID, typ MessageType, payload any) (Message, error) {
	msg := Message{StudioID: studio, Type: typ}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	msg.Payload = raw
	return msg, nil
}

func (m Message) Frame() (Frame, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}

type Track string

const (
	TrackMic    Track = "mic"
	TrackCamera Track = "camera"
	TrackScreen Track = "screen"
)

type MuteStatePayload struct {
	Track   Track `json:"track"`
	Enabled bool  `json:"enabled"`
}

type PermissionChangePayload struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
	Capabilities  domain.Capabilities  `json:"capabilities"`
}

// PeerPayload describes the affected connection in peer-joined and peer-left.
type PeerPayload struct {
	ParticipantView
	Reason EvictReason `json:"reason,omitempty"`
}

type WelcomePayload struct {
	Self       ParticipantView   `json:"self"`
	SessionID  domain.SessionID  `json:"sessionId,omitempty"`
	StartMuted bool              `json:"startMuted"`
	Roster     []ParticipantView `json:"roster"`
	ICEServers any               `json:"iceServers,omitempty"`
}

type EvictedPayload struct {
	Reason EvictReason `json:"reason"`
}
