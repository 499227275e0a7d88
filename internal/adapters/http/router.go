// Package http exposes the scheduling API and the signaling WebSocket.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/podnest/studio/internal/adapters/signal"
	"github.com/podnest/studio/internal/app/orch"
	"github.com/podnest/studio/internal/config"
	"github.com/podnest/studio/internal/domain"
	"github.com/rs/zerolog/log"
)

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			// credentials forbid a literal "*", so echo the origin back
			cfg.AllowOriginFunc = func(string) bool { return true }
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidators()

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	}

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Str("module", "adapters.http").Msg("no session secret configured, cookies will not survive a restart")
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("PodNestSession", store))

	id := &identity{
		jwtSecret:    []byte(cfg.Auth.JWTSecret),
		trustHeaders: cfg.Mode == "debug" && cfg.Auth.JWTSecret == "",
	}
	r.Use(id.IdentityMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": o.Registry.RoomCount()})
	})

	h := &handlers{orch: o, publicURL: cfg.PublicURL}
	ctl := signal.NewSignalWSController(o, signal.Options{
		SendBuffer:     cfg.Signal.SendBuffer,
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		Rate:           cfg.Signal.Rate,
		Burst:          cfg.Signal.Burst,
		AllowedOrigins: cfg.CORSOrigins,
	})
	go ctl.Run(ctx)

	api := r.Group("/api")
	api.GET("/studios/invite/:code", h.studioByInvite)

	authed := api.Group("", RequireIdentity())
	authed.POST("/studios", h.createStudio)
	authed.GET("/studios/:id/participants", h.participants)
	authed.DELETE("/studios/:id/participants/:participantId", h.kick)

	authed.GET("/schedule", h.listSessions)
	authed.POST("/schedule", h.schedule)
	authed.GET("/schedule/:id", h.getSession)
	authed.DELETE("/schedule/:id", h.deleteSession)
	authed.POST("/schedule/:id/start", h.transition(o.Sessions.Start))
	authed.POST("/schedule/:id/end", h.transition(o.Sessions.End))
	authed.POST("/schedule/:id/cancel", h.transition(o.Sessions.Cancel))
	authed.POST("/schedule/:id/guests/respond", h.respondInvitation)
	authed.PUT("/schedule/:id/guests/:email/capabilities", h.updateCapabilities)

	authed.GET("/ws/studio/:studioId/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("studio", c.Param("studioId")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c, domain.StudioID(c.Param("studioId")), mustParticipant(c))
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Bool("jwt", len(id.jwtSecret) > 0).Msg("router setup")
	return r
}
