// Command clickapi runs the reference click service. Counters live in memory
// unless DB_PATH names a SQLite file; NATS_DIR enables change events on an
// embedded NATS server.
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
	"github.com/ryanhamamura/clicker/clicknats"
	"github.com/ryanhamamura/clicker/clickserver"
)

const (
	historyMaxMsgs = 10_000
	historyMaxAge  = 24 * time.Hour
)

func main() {
	cfg, err := NewConfig()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(cfg.level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store clickserver.Store = clickserver.NewMemoryStore()
	if cfg.DBPath != "" {
		sqlStore, err := clickserver.OpenSQLite(cfg.DBPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open click database")
		}
		defer func() {
			logger.Info().Msg("closing database")
			sqlStore.Close()
		}()
		store = sqlStore
	}

	opts := []clickserver.Option{clickserver.WithLogger(logger)}
	if cfg.NATSDir != "" {
		n, err := startEvents(ctx, cfg.NATSDir, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start change events")
		}
		defer n.Close()
		opts = append(opts, clickserver.WithPublisher(n))
	}

	handler, err := clickserver.New(store, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create click service")
	}

	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Msgf("click service listening on %s", cfg.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("service shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Msgf("shutdown error: %v", err)
	}
}

// startEvents brings up NATS, logs retained history and follows new changes.
func startEvents(ctx context.Context, dir string, logger zerolog.Logger) (*clicknats.NATS, error) {
	n, err := clicknats.New(ctx, dir)
	if err != nil {
		return nil, err
	}
	if err := n.EnsureStream(historyMaxMsgs, historyMaxAge); err != nil {
		n.Close()
		return nil, err
	}

	history, err := n.History(clickserver.Subject, historyMaxMsgs)
	if err != nil {
		n.Close()
		return nil, err
	}
	logger.Info().Int("events", len(history)).Msg("replayed click history")

	if _, err := clicknats.WatchClicks(n, func(e clickserver.Event) {
		logger.Debug().Str("client", e.Client).Str("op", e.Op).Int("clicks", e.Clicks).Msg("clicks changed")
	}); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}
