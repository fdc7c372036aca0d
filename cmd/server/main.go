// Command server runs the network commission and qualification engine:
// it opens the database, runs migrations and level seeding, configures
// logging and tracing, mounts the HTTP API, and handles graceful shutdown.
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

	"github.com/avasiliou/go-mlm-backend/internal/config"
	httpapi "github.com/avasiliou/go-mlm-backend/internal/http"
	"github.com/avasiliou/go-mlm-backend/internal/observability"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
	"github.com/avasiliou/go-mlm-backend/internal/services"
	"github.com/avasiliou/go-mlm-backend/internal/sysutil"
)

// version is stamped by the build (-ldflags "-X main.version=…").
var version = "dev"

func main() {
	// Best effort: local development reads .env, production uses real env.
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	cfg := config.MustLoad()

	// Logging: structured JSON by default, human console in dev.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	sysutil.SetLogLevel(cfg.LogLevel)

	host := sysutil.Hostname("server")
	log.Info().
		Str("version", sysutil.FirstNonEmpty(os.Getenv("SERVICE_VERSION"), version)).
		Str("host", host).
		Str("port", cfg.Port).
		Msg("starting")

	// Database: open, migrate, seed the qualification ladder.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	if err := repo.SeedLevelDefinitions(db); err != nil {
		log.Fatal().Err(err).Msg("seed level definitions")
	}

	// Tracing.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	// HTTP transport.
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	// Background janitor: evict expired idempotency records so the table
	// stays bounded by the dedupe window.
	coord := services.NewIdempotencyCoordinator(db)
	coord.RecordTTL = cfg.Idempotency.TTL
	go purgeLoop(ctx, coord, cfg.Idempotency.PurgeEvery)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	log.Info().Msg("stopped")
}

// purgeLoop periodically removes expired idempotency records until ctx ends.
func purgeLoop(ctx context.Context, coord *services.IdempotencyCoordinator, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := coord.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge")
				continue
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("idempotency purge")
			}
		}
	}
}
