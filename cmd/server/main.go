package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/podnest/studio/internal/adapters/http"
	"github.com/podnest/studio/internal/adapters/mail"
	"github.com/podnest/studio/internal/adapters/rtc"
	"github.com/podnest/studio/internal/app"
	"github.com/podnest/studio/internal/app/orch"
	"github.com/podnest/studio/internal/config"
	"github.com/podnest/studio/internal/core"
	"github.com/podnest/studio/internal/storage/memory"
	"github.com/podnest/studio/internal/storage/postgres"
)

type store interface {
	app.SessionRepository
	app.StudioDirectory
}

func openStore(cfg *config.Config) (store, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warn().Str("module", "main").Msg("no database configured, sessions are kept in memory")
		return memory.NewStore(), func() {}, nil
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.DSN); err != nil {
			return nil, nil, err
		}
	}
	pg, err := postgres.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("close database")
		}
	}, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	iceServers, err := rtc.ICEServers(cfg.ICEServers)
	if err != nil {
		log.Fatal().Err(err).Msg("bad ice_servers")
	}

	ledger := app.NewLedger(st)
	reg := core.NewRegistry(ledger, core.WithICEServers(iceServers))
	machine := app.NewMachine(st, st, reg, mail.New(cfg.SMTP), app.NewRoomRecorder(reg), app.MachineConfig{
		PublicURL:      cfg.PublicURL,
		EmptyRoomGrace: cfg.Sessions.EmptyRoomGrace,
	})
	defer machine.Close()
	reg.SetEmptyRoomHook(machine.OnRoomEmpty)
	if err := machine.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("restore sessions")
	}

	o := &orch.Orchestrator{
		Registry: reg,
		Relay:    core.NewRelay(reg, ledger),
		Sessions: machine,
		Ledger:   ledger,
		Studios:  st,
		Policy:   app.HostFriendlyPolicy{},
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("PodNest studio server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
