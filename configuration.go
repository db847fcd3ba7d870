package clicker

import (
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog"
)

func ptr(l zerolog.Level) *zerolog.Level { return &l }

var (
	LogLevelDebug = ptr(zerolog.DebugLevel)
	LogLevelInfo  = ptr(zerolog.InfoLevel)
	LogLevelWarn  = ptr(zerolog.WarnLevel)
	LogLevelError = ptr(zerolog.ErrorLevel)
)

// Plugin mutates the app at configuration time. Handy for adding stylesheets
// or extra routes.
type Plugin func(a *App)

// Options configures an App. Zero fields keep the current value, see Config.
type Options struct {
	// DevMode switches the default logger to a human readable console writer.
	DevMode bool

	// ServerAddress is the listen address, e.g. ":3000".
	ServerAddress string

	// LogLevel sets the minimum log level. nil keeps the default (Info).
	LogLevel *zerolog.Level

	// Logger replaces the default logger. LogLevel and DevMode then have no
	// effect on logging.
	Logger *zerolog.Logger

	// DocumentTitle is the <title> of every page.
	DocumentTitle string

	Plugins []Plugin

	// SessionManager enables cookie sessions. Handlers are wrapped with its
	// LoadAndSave middleware.
	SessionManager *scs.SessionManager

	// DatastarContent, when set, is served from DatastarPath. Otherwise
	// pages load Datastar from the public CDN.
	DatastarContent []byte

	// DatastarPath defaults to "/_datastar.js".
	DatastarPath string

	// ContextTTL is how long a rendered page may go without opening its SSE
	// stream before it is reaped. 0 means 30s, negative disables reaping.
	ContextTTL time.Duration

	// ActionRateLimit is the token bucket applied to each page's actions.
	// Zero fields use the defaults, Rate -1 disables limiting.
	ActionRateLimit RateLimitConfig
}
