package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/podnest/studio/internal/core"
)

const writeWait = 5 * time.Second

// Client-side control types. They are handled here and never relayed.
const (
	typeJoin   core.MessageType = "join"
	typeLeave  core.MessageType = "leave"
	typePing   core.MessageType = "ping"
	typeWhoAmI core.MessageType = "whoami"
)

type ErrorPayload struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// inbound is a client frame. From and participantId are ignored; the server
// stamps them.
type inbound struct {
	StudioID string            `json:"studioId"`
	Type     core.MessageType  `json:"type"`
	To       core.ConnectionID `json:"to"`
	Payload  json.RawMessage   `json:"payload"`
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cl *client) {
	defer func() {
		cl.log.Info().Msg("readPump closing")
		ctl.leave(cl, core.ReasonDisconnected)
		cl.ws.Close()
		cancel()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = cl.ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.ws.conn.SetPongHandler(func(string) error {
		return cl.ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := cl.ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.log.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		_ = cl.ws.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleSignal(cl, data)
	}
}

func (ctl *SignalWSController) handleSignal(cl *client, data []byte) {
	if !ctl.limiter.Allow(string(cl.who.ID)) {
		ctl.sendError(cl, "rate_limited", "")
		return
	}
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
		cl.log.Debug().Err(err).Msg("bad json")
		ctl.sendError(cl, "bad_payload", "")
		return
	}
	if in.StudioID != "" && in.StudioID != string(cl.studio) {
		ctl.sendError(cl, "studio_mismatch", in.StudioID)
		return
	}

	switch in.Type {
	case typeJoin:
		ctl.handleJoin(cl, in.Payload)
	case typeLeave:
		ctl.handleLeave(cl)
	case typePing:
		ctl.handlePing(cl)
	case typeWhoAmI:
		ctl.handleWhoAmI(cl)
	default:
		ctl.handleRelay(cl, in)
	}
}

// send writes directly to the socket, bypassing room membership.
func (ctl *SignalWSController) send(cl *client, typ core.MessageType, payload any) {
	msg, err := core.NewMessage(cl.studio, typ, payload)
	if err != nil {
		cl.log.Error().Err(err).Msg("send marshal")
		return
	}
	f, err := msg.Frame()
	if err != nil {
		cl.log.Error().Err(err).Msg("send marshal")
		return
	}
	if err := cl.ws.TrySend(f); err != nil && !errors.Is(err, core.ErrPeerUnreachable) {
		cl.log.Warn().Err(err).Str("type", string(typ)).Msg("send dropped")
	}
}

func (ctl *SignalWSController) sendError(cl *client, code, detail string) {
	ctl.send(cl, core.TypeError, ErrorPayload{Error: code, Detail: detail})
}
