package orch

import (
	"context"

	"github.com/podnest/studio/internal/app"
	"github.com/podnest/studio/internal/core"
	"github.com/rs/zerolog/log"
)

// Orchestrator is what transports talk to: room membership, signaling and
// session lifecycle behind one value.
type Orchestrator struct {
	Registry *core.Registry
	Relay    *core.Relay
	Sessions *app.Machine
	Ledger   *app.Ledger
	Studios  app.StudioDirectory
	Policy   app.Policy
}

// Signal relays msg and applies the backpressure policy to slow recipients.
func (o *Orchestrator) Signal(ctx context.Context, from *core.Connection, to core.ConnectionID, msg core.Message) (core.PublishResult, error) {
	res, err := o.Relay.Relay(ctx, from, to, msg)
	o.applyPolicy(res)
	return res, err
}

func (o *Orchestrator) applyPolicy(res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(slow) {
		case app.KickMember:
			if o.Registry.Evict(slow, core.ReasonSlowConsumer) {
				log.Warn().Str("module", "orch").Str("studio", string(slow.StudioID)).Str("conn", string(slow.ID)).Msg("slow consumer kicked")
			}
		case app.DropFrame, app.NoAction:
		}
	}
}
