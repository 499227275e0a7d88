// Package signal serves the studio/{studioId}/signal WebSocket topic.
package signal

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/podnest/studio/internal/app/orch"
	"github.com/podnest/studio/internal/core"
	"github.com/podnest/studio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	SendBuffer int
	ReadLimit  int64
	PingPeriod time.Duration
	// Rate and Burst bound inbound frames per participant.
	Rate  float64
	Burst int
	// AllowedOrigins empty or containing "*" accepts any origin.
	AllowedOrigins []string
}

func (o *Options) setDefaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.Rate <= 0 {
		o.Rate = 50
	}
	if o.Burst <= 0 {
		o.Burst = 100
	}
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	opts     Options
	limiter  *RateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	opts.setDefaults()
	ctl := &SignalWSController{
		Orch:    o,
		opts:    opts,
		limiter: NewRateLimiter(opts.Rate, opts.Burst, 10*time.Minute),
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(ctl.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(ctl.opts.AllowedOrigins, "*") || slices.Contains(ctl.opts.AllowedOrigins, origin)
}

// Run sweeps idle rate limiters until ctx is done.
func (ctl *SignalWSController) Run(ctx context.Context) {
	ctl.limiter.Run(ctx)
}

// WsSignalConn is the outbound half of one socket. Frames queue on send and
// writePump drains them; a full queue is reported, never waited on.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrPeerUnreachable
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops accepting frames; writePump flushes what is queued and then
// closes the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// client is the per-socket state owned by readPump.
type client struct {
	ctx    context.Context
	ws     *WsSignalConn
	studio domain.StudioID
	who    domain.Participant
	log    zerolog.Logger

	member *memberSignal
	conn   *core.Connection
}

// HandleSignal upgrades the request and serves who on the studio topic until
// the socket closes or ctx is done.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, studio domain.StudioID, who domain.Participant) {
	logger := log.With().Str("module", "signal").Str("studio", string(studio)).Str("participant", string(who.ID)).Logger()
	logger.Info().Msg("new WS connection")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	ctx, cancel := context.WithCancel(ctx)
	cl := &client{ctx: ctx, ws: conn, studio: studio, who: who, log: logger}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, cl)
}
