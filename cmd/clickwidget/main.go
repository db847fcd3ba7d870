// Command clickwidget serves a page with the click counter widget. With
// SERVE_API set it also runs the reference click service in-process.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/ryanhamamura/clicker"
	"github.com/ryanhamamura/clicker/clicksapi"
	"github.com/ryanhamamura/clicker/clickserver"
	"github.com/ryanhamamura/clicker/h"
	"github.com/ryanhamamura/clicker/widget"
)

const stylesheet = `
.clicker { display: flex; gap: .5rem; align-items: center; font-family: sans-serif; }
.clicker-error { color: #b00020; margin: 0; }
`

func main() {
	cfg, err := NewConfig()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg)

	app := clicker.New()
	opts := clicker.Options{
		DevMode:       cfg.DevMode,
		ServerAddress: cfg.Address,
		Logger:        &logger,
		DocumentTitle: "Clicker",
		Plugins: []clicker.Plugin{
			func(a *clicker.App) { a.AppendToHead(h.Raw("<style>" + stylesheet + "</style>")) },
		},
	}

	if cfg.SessionDB != "" {
		db, err := sql.Open("sqlite3", cfg.SessionDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open session database")
		}
		defer db.Close()

		sm, err := clicker.NewSQLiteSessionManager(db)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create session manager")
		}
		opts.SessionManager = sm
	}
	app.Config(opts)

	var apiServer *http.Server
	if cfg.ServeAPI {
		apiServer = startAPI(cfg.APIAddress, logger)
	}

	client := clicksapi.New(cfg.ClicksAPIURL)
	logger.Info().Msgf("using click service at: %s", client.BaseURL())

	app.Page("/", widget.Component(client))

	app.Start()

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("click service shutdown error")
		}
	}
}

func newLogger(cfg *Config) zerolog.Logger {
	if cfg.DevMode {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
			With().Timestamp().Logger().Level(cfg.level)
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(cfg.level)
}

func startAPI(addr string, logger zerolog.Logger) *http.Server {
	apiLogger := logger.With().Str("component", "clickserver").Logger()
	handler, err := clickserver.New(clickserver.NewMemoryStore(), clickserver.WithLogger(apiLogger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create click service")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		apiLogger.Info().Msgf("click service listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			apiLogger.Fatal().Err(err).Msg("click service failed")
		}
	}()
	return srv
}
