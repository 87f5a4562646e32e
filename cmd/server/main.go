package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"exam-judge/internal/api"
	"exam-judge/internal/config"
	"exam-judge/internal/judge"
	"exam-judge/internal/language"
	"exam-judge/internal/monitor"
	"exam-judge/internal/session"
	"exam-judge/internal/store"
	"exam-judge/internal/workspace"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := monitor.NewMetrics()

	// Durable results: per-user audit log + last-submission snapshot.
	results, err := store.NewFileStore(cfg.Results.Dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Results.Dir).Msg("failed to open result store")
	}

	// Optional Postgres mirror of the audit trail.
	var db *store.DB
	var auditWriter *store.AuditWriter
	if cfg.Database.DSN != "" {
		db, err = store.NewDB(ctx, cfg.Database.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, audit mirror disabled")
		} else {
			defer db.Close()
			auditWriter = store.NewAuditWriter(db, 1000)
			auditWriter.Start()
			defer auditWriter.Flush(10 * time.Second)
			results.SetMirror(auditWriter)
		}
	}

	sessions := session.NewStore(results)

	scratch, err := workspace.NewManager(cfg.Judge.ScratchRoot)
	if err != nil {
		log.Fatal().Err(err).Str("root", cfg.Judge.ScratchRoot).Msg("failed to create scratch root")
	}

	languages := language.NewRegistry(
		language.NewCSharp(cfg.Languages.CSharp),
		language.NewTypeScript(cfg.Languages.TypeScript),
	)

	grader := judge.New(sessions, languages, scratch, results, metrics, judge.Options{
		RunTimeout:     cfg.Judge.RunTimeout,
		MaxConcurrent:  cfg.Judge.MaxConcurrent,
		MaxOutputBytes: cfg.Judge.MaxOutputBytes,
	})

	handlers := api.NewHandlers(grader, sessions, results, scratch, metrics,
		cfg.Session.DefaultTimeBudget, cfg.Judge.MaxCodeBytes)

	server := api.NewServer(cfg, handlers, metrics, db)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("db_enabled", db != nil).
		Strs("languages", languages.Languages()).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
