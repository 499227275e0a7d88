package signal

import (
	"errors"

	"github.com/podnest/studio/internal/core"
)

// handleRelay forwards OFFER, ANSWER, ICE_CANDIDATE, MUTE_STATE,
// PERMISSION_CHANGE and extension types through the relay.
func (ctl *SignalWSController) handleRelay(cl *client, in inbound) {
	if !ctl.joined(cl) {
		ctl.sendError(cl, "not_joined", string(in.Type))
		return
	}
	msg := core.Message{
		StudioID: cl.studio,
		Type:     in.Type,
		To:       in.To,
		Payload:  in.Payload,
	}
	res, err := ctl.Orch.Signal(cl.ctx, cl.conn, in.To, msg)
	switch {
	case err == nil:
		cl.log.Debug().Str("type", string(in.Type)).Str("to", string(in.To)).Int("sent_to", res.SentTo).Msg("relayed")
	case errors.Is(err, core.ErrCapabilityDenied):
		// silently dropped; the sender is not told
		cl.log.Info().Err(err).Str("type", string(in.Type)).Msg("capability denied")
	case errors.Is(err, core.ErrUnknownPeer):
		ctl.sendError(cl, "unknown_peer", string(in.To))
	case errors.Is(err, core.ErrInvalidPayload):
		cl.log.Debug().Err(err).Str("type", string(in.Type)).Msg("invalid payload")
		ctl.sendError(cl, "invalid_payload", string(in.Type))
	case errors.Is(err, core.ErrPeerUnreachable):
		ctl.sendError(cl, "peer_unreachable", string(in.To))
	default:
		cl.log.Error().Err(err).Str("type", string(in.Type)).Msg("relay failed")
		ctl.sendError(cl, "relay_failed", string(in.Type))
	}
}
