// Command server runs the fitness edge gateway: the caching, chat, and AI
// front door that sits between the client apps and the origin backend.
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

	"github.com/fittrackpro/go-fitness-edge/internal/ai"
	"github.com/fittrackpro/go-fitness-edge/internal/analytics"
	"github.com/fittrackpro/go-fitness-edge/internal/cache"
	"github.com/fittrackpro/go-fitness-edge/internal/chat"
	"github.com/fittrackpro/go-fitness-edge/internal/config"
	httpapi "github.com/fittrackpro/go-fitness-edge/internal/http"
	"github.com/fittrackpro/go-fitness-edge/internal/http/handlers"
	"github.com/fittrackpro/go-fitness-edge/internal/observability"
	"github.com/fittrackpro/go-fitness-edge/internal/repo"
	"github.com/fittrackpro/go-fitness-edge/internal/search"
	"github.com/fittrackpro/go-fitness-edge/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("service", cfg.OTEL.ServiceName).Logger()
	handlers.Version = version

	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open sqlite failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migrate failed")
	}

	kv, err := cache.Open(cfg.KVPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.KVPath).Msg("open kv store failed")
	}

	idx := search.NewIndex()
	if cfg.ExerciseSeedPath != "" {
		records, err := search.LoadSeed(cfg.ExerciseSeedPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.ExerciseSeedPath).Msg("exercise seed load failed")
		} else {
			n := idx.Swap(records)
			logger.Info().Int("indexed", n).Msg("exercise index seeded")
		}
	}

	aiClient := ai.NewClient(cfg.AI, logger)
	if !aiClient.Enabled() {
		logger.Warn().Msg("no ai provider configured, generation endpoints will fail")
	}

	hub := chat.NewHub(kv, logger, cfg.ChatRetention, cfg.ChatHistoryLimit)
	tracker := &analytics.Tracker{DB: db, Log: logger, Timeout: 5 * time.Second}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Cfg:     cfg,
		DB:      db,
		KV:      kv,
		Index:   idx,
		AI:      aiClient,
		Hub:     hub,
		Tracker: tracker,
		Log:     logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}

	if err := kv.Close(); err != nil {
		logger.Error().Err(err).Msg("kv close failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error().Err(err).Msg("db close failed")
		}
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("otel shutdown failed")
	}
	logger.Info().Msg("goodbye")
}
