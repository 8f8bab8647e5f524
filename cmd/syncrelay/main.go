package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/syncrelay/syncrelay/internal/bot"
	"github.com/syncrelay/syncrelay/internal/config"
	"github.com/syncrelay/syncrelay/internal/history"
	"github.com/syncrelay/syncrelay/internal/policy"
	"github.com/syncrelay/syncrelay/internal/relay"
	"github.com/syncrelay/syncrelay/internal/service"
	"github.com/syncrelay/syncrelay/internal/store"
	v1 "github.com/syncrelay/syncrelay/internal/transport/http/v1"
	"github.com/syncrelay/syncrelay/internal/turn"
)

func main() {
	// Load configuration
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	logger.Info().
		Int("http_port", cfg.HTTPPort).
		Str("store_dsn", cfg.StoreDSN).
		Str("relay_url", cfg.RelayURL).
		Int("replay_batch_size", cfg.ReplayBatchSize).
		Msg("starting syncrelay")

	// Initialize activity log store
	st, err := store.Open(cfg.StoreDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer st.Close()

	// Initialize relay channel client
	relayClient := relay.NewClient(cfg.RelayURL, cfg.RelaySecret, cfg.RelayTimeout)

	// Initialize credential-issuance policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize policy engine")
	}

	// Initialize turn pipeline with the history synchronizer
	sync := history.NewSynchronizer(st, relayClient, cfg.ReplayBatchSize, logger)
	adapter := turn.NewAdapter(relayClient, logger).Use(sync)

	// Initialize token gateway
	svc := service.New(st, relayClient, policyEngine, cfg.TrustedOrigins, logger)

	// Initialize handlers
	h := v1.NewHandler(svc, adapter, &bot.EchoBot{}, logger)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Register routes
	h.RegisterRoutes(e)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	logger.Info().Int("port", cfg.HTTPPort).Msg("syncrelay started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down syncrelay")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server gracefully")
	}

	logger.Info().Msg("syncrelay stopped")
}
