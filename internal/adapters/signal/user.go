package signal

import (
	"github.com/podnest/studio/internal/core"
	"github.com/podnest/studio/internal/domain"
)

const typeWhoAmIReply core.MessageType = "whoami"

type WhoAmIPayload struct {
	Participant domain.Participant    `json:"participant"`
	Joined      bool                  `json:"joined"`
	Self        *core.ParticipantView `json:"self,omitempty"`
}

func (ctl *SignalWSController) handleWhoAmI(cl *client) {
	resp := WhoAmIPayload{Participant: cl.who}
	if ctl.joined(cl) {
		view := cl.conn.View()
		resp.Joined = true
		resp.Self = &view
		resp.Participant = cl.conn.Participant
	}
	ctl.send(cl, typeWhoAmIReply, resp)
}
