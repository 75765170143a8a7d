// Command backofficed runs the offline-first data layer daemon: it keeps
// the local entity cache in sync with the remote back-office API, replays
// mutations queued while offline, and serves the HTTP surface UI-facing
// callers and the manual-resolution tooling talk to.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lmarques/go-backoffice-sync/internal/config"
	"github.com/lmarques/go-backoffice-sync/internal/connectivity"
	"github.com/lmarques/go-backoffice-sync/internal/domain"
	httpapi "github.com/lmarques/go-backoffice-sync/internal/http"
	"github.com/lmarques/go-backoffice-sync/internal/observability"
	"github.com/lmarques/go-backoffice-sync/internal/remote"
	"github.com/lmarques/go-backoffice-sync/internal/repository"
	"github.com/lmarques/go-backoffice-sync/internal/store"
	"github.com/lmarques/go-backoffice-sync/internal/syncengine"
	"github.com/lmarques/go-backoffice-sync/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Optional .env for local development; real deployments use the
	// environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("opening local store failed")
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrating local store failed")
	}

	remoteCfg := remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Token:   cfg.Remote.Token,
		Timeout: cfg.Remote.Timeout,
	}

	probe := connectivity.NewProbe(cfg.Sync.ProbeURL, cfg.Sync.ProbeInterval, nil)
	oplog := store.NewOpLog(db)

	clients := repository.New(
		remote.NewResource[domain.Client](remoteCfg),
		store.NewEntities[domain.Client](db),
		oplog, probe,
	)
	providers := repository.New(
		remote.NewResource[domain.Provider](remoteCfg),
		store.NewEntities[domain.Provider](db),
		oplog, probe,
	)

	engine := syncengine.New(oplog, probe, syncengine.Options{
		MaxRetries:  cfg.Sync.MaxRetries,
		ReplayRPS:   cfg.Sync.ReplayRPS,
		ReplayBurst: cfg.Sync.ReplayBurst,
	})
	engine.Register(clients)
	engine.Register(providers)

	go probe.Run(ctx)
	go engine.Run(ctx, probe.Subscribe(), cfg.Sync.DrainInterval)

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Clients:   clients,
		Providers: providers,
		OpLog:     oplog,
		Oracle:    probe,
		Engine:    engine,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("backofficed listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
