package signal

import "github.com/podnest/studio/internal/core"

func (ctl *SignalWSController) handlePing(cl *client) {
	ctl.send(cl, core.TypePong, nil)
}
