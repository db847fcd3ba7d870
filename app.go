// Package clicker renders live, server-driven pages. A page is a Go func
// that declares its state, actions and view; the browser receives HTML and
// stays in sync over a Datastar SSE stream, so widgets such as the click
// counter in package widget need no hand-written JavaScript.
package clicker

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog"
	"github.com/ryanhamamura/clicker/h"
	"github.com/starfederation/datastar-go/datastar"
)

const (
	defaultDatastarPath = "/_datastar.js"
	datastarCDN         = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"

	ctxSignal  = "clicker-ctx"
	csrfSignal = "clicker-csrf"
)

// App owns the routes, the live page contexts and the HTTP server.
type App struct {
	cfg             Options
	mux             *http.ServeMux
	server          *http.Server
	logger          zerolog.Logger
	registry        map[string]*Context
	registryMu      sync.RWMutex
	headIncludes    []h.H
	sessionManager  *scs.SessionManager
	actionRateLimit RateLimitConfig
	datastarOnce    sync.Once
	reaperStop      chan struct{}
}

func (a *App) logEvent(evt *zerolog.Event, c *Context) *zerolog.Event {
	if c != nil && c.id != "" {
		evt = evt.Str(ctxSignal, c.id)
	}
	return evt
}

func (a *App) logFatal(format string, v ...any) {
	a.logEvent(a.logger.WithLevel(zerolog.FatalLevel), nil).Msgf(format, v...)
}

func (a *App) logErr(c *Context, format string, v ...any) {
	a.logEvent(a.logger.Error(), c).Msgf(format, v...)
}

func (a *App) logWarn(c *Context, format string, v ...any) {
	a.logEvent(a.logger.Warn(), c).Msgf(format, v...)
}

func (a *App) logInfo(c *Context, format string, v ...any) {
	a.logEvent(a.logger.Info(), c).Msgf(format, v...)
}

func (a *App) logDebug(c *Context, format string, v ...any) {
	a.logEvent(a.logger.Debug(), c).Msgf(format, v...)
}

func newConsoleLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger().Level(level)
}

// Logger returns the app logger so pages can log with the same sink.
func (a *App) Logger() zerolog.Logger {
	return a.logger
}

// Config merges cfg into the current configuration. Only non-zero fields
// are applied.
func (a *App) Config(cfg Options) {
	if cfg.Logger != nil {
		a.logger = *cfg.Logger
	} else if cfg.LogLevel != nil || cfg.DevMode != a.cfg.DevMode {
		level := zerolog.InfoLevel
		if cfg.LogLevel != nil {
			level = *cfg.LogLevel
		}
		if cfg.DevMode {
			a.logger = newConsoleLogger(level)
		} else {
			a.logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
		}
	}
	a.cfg.DevMode = cfg.DevMode
	if cfg.DocumentTitle != "" {
		a.cfg.DocumentTitle = cfg.DocumentTitle
	}
	if cfg.ServerAddress != "" {
		a.cfg.ServerAddress = cfg.ServerAddress
	}
	if cfg.SessionManager != nil {
		a.sessionManager = cfg.SessionManager
	}
	if cfg.DatastarPath != "" {
		a.cfg.DatastarPath = cfg.DatastarPath
	}
	if cfg.DatastarContent != nil {
		a.cfg.DatastarContent = cfg.DatastarContent
		a.ensureDatastarHandler()
	}
	if cfg.ContextTTL != 0 {
		a.cfg.ContextTTL = cfg.ContextTTL
	}
	if cfg.ActionRateLimit.Rate != 0 || cfg.ActionRateLimit.Burst != 0 {
		a.actionRateLimit = cfg.ActionRateLimit
	}
	for _, plugin := range cfg.Plugins {
		if plugin != nil {
			plugin(a)
		}
	}
}

// AppendToHead adds nodes (stylesheets, scripts) to every page head.
func (a *App) AppendToHead(elements ...h.H) {
	for _, el := range elements {
		if el != nil {
			a.headIncludes = append(a.headIncludes, el)
		}
	}
}

// Page registers route. initFn runs once per page load on a fresh *Context
// and declares the page state, actions and view.
//
// initFn is also run once at registration on a throwaway context to catch
// panics early; OnMount hooks are not run for that dry run.
//
// Example:
//
//	app.Page("/", func(c *clicker.Context) {
//		c.View(func() h.H {
//			return h.H1(h.Text("Hello"))
//		})
//	})
func (a *App) Page(route string, initFn func(c *Context)) {
	func() {
		defer func() {
			if err := recover(); err != nil {
				a.logFatal("failed to register page %s with init func that panics: %v", route, err)
				panic(err)
			}
		}()
		c := newContext("", route, a)
		initFn(c)
		c.view()
		c.dispose()
	}()

	a.mux.HandleFunc("GET "+route, func(w http.ResponseWriter, r *http.Request) {
		a.logDebug(nil, "GET %s", r.URL.String())
		if strings.Contains(r.URL.Path, "favicon") ||
			strings.Contains(r.URL.Path, ".well-known") ||
			strings.Contains(r.URL.Path, "js.map") {
			return
		}
		id := fmt.Sprintf("%s_/%s", route, genRandID())
		c := newContext(id, route, a)
		c.setRequest(r)
		c.injectRouteParams(extractParams(route, r.URL.Path))
		initFn(c)
		a.registerCtx(c)

		headElements := []h.H{h.Script(h.Type("module"), h.Src(a.datastarSrc()))}
		headElements = append(headElements, a.headIncludes...)
		headElements = append(headElements,
			h.Meta(h.Data("signals", fmt.Sprintf("{'%s':'%s','%s':'%s'}", ctxSignal, id, csrfSignal, c.csrfToken))),
			h.Meta(h.Data("init", "@get('/_sse')")),
			h.Meta(h.Data("init", fmt.Sprintf(`window.addEventListener('beforeunload', (evt) => {
			navigator.sendBeacon('/_session/close', '%s');});`, c.id))),
		)

		view := h.HTML5(h.HTML5Props{
			Title: a.cfg.DocumentTitle,
			Head:  headElements,
			Body:  []h.H{c.view()},
		})
		if err := view.Render(w); err != nil {
			a.logErr(c, "render page failed: %v", err)
		}
		c.mount()
	})
}

func (a *App) registerCtx(c *Context) {
	if c == nil {
		a.logErr(nil, "failed to add nil context to registry")
		return
	}
	a.registryMu.Lock()
	a.registry[c.id] = c
	n := len(a.registry)
	a.registryMu.Unlock()
	a.logDebug(c, "new context added to registry")
	a.logDebug(nil, "number of contexts in registry: %d", n)
}

func (a *App) cleanupCtx(c *Context) {
	c.dispose()
	a.unregisterCtx(c)
}

func (a *App) unregisterCtx(c *Context) {
	if c.id == "" {
		a.logErr(c, "unregister ctx failed: ctx contains empty id")
		return
	}
	a.registryMu.Lock()
	delete(a.registry, c.id)
	n := len(a.registry)
	a.registryMu.Unlock()
	a.logDebug(c, "ctx removed from registry")
	a.logDebug(nil, "number of contexts in registry: %d", n)
}

func (a *App) getCtx(id string) (*Context, error) {
	a.registryMu.RLock()
	defer a.registryMu.RUnlock()
	if c, ok := a.registry[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("ctx '%s' not found", id)
}

func (a *App) startReaper() {
	ttl := a.cfg.ContextTTL
	if ttl < 0 {
		return
	}
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	interval := max(ttl/3, 5*time.Second)
	a.reaperStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.reaperStop:
				return
			case <-ticker.C:
				a.reapOrphanedContexts(ttl)
			}
		}
	}()
}

func (a *App) reapOrphanedContexts(ttl time.Duration) {
	now := time.Now()
	a.registryMu.RLock()
	var orphans []*Context
	for _, c := range a.registry {
		if !c.sseConnected.Load() && now.Sub(c.createdAt) > ttl {
			orphans = append(orphans, c)
		}
	}
	a.registryMu.RUnlock()

	for _, c := range orphans {
		a.logInfo(c, "reaping orphaned context (no SSE connection after %s)", ttl)
		a.cleanupCtx(c)
	}
}

// Handler returns the app routes wrapped with the session middleware when
// a SessionManager is configured.
func (a *App) Handler() http.Handler {
	if a.sessionManager != nil {
		return a.sessionManager.LoadAndSave(a.mux)
	}
	return a.mux
}

// Start serves on ServerAddress and blocks until SIGINT or SIGTERM, then
// shuts down gracefully.
func (a *App) Start() {
	a.server = &http.Server{
		Addr:    a.cfg.ServerAddress,
		Handler: a.Handler(),
	}

	a.startReaper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	a.logInfo(nil, "clicker started at [%s]", a.cfg.ServerAddress)

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logInfo(nil, "received signal %v, shutting down", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			a.logger.Fatal().Err(err).Msg("http server failed")
		}
		return
	}

	a.Shutdown()
}

// Shutdown drains every live context and stops the server.
func (a *App) Shutdown() {
	if a.reaperStop != nil {
		close(a.reaperStop)
		a.reaperStop = nil
	}
	a.logInfo(nil, "draining all contexts")
	a.drainAllContexts()

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.logErr(nil, "http server shutdown error: %v", err)
		}
	}
	a.logInfo(nil, "shutdown complete")
}

func (a *App) drainAllContexts() {
	a.registryMu.Lock()
	contexts := make([]*Context, 0, len(a.registry))
	for _, c := range a.registry {
		contexts = append(contexts, c)
	}
	a.registry = make(map[string]*Context)
	a.registryMu.Unlock()

	for _, c := range contexts {
		a.logDebug(c, "disposing context")
		c.dispose()
	}
	a.logInfo(nil, "drained %d context(s)", len(contexts))
}

// HTTPServeMux exposes the router so extra handlers can be mounted before
// Start. Registering after Start is not safe.
func (a *App) HTTPServeMux() *http.ServeMux {
	return a.mux
}

func (a *App) datastarSrc() string {
	if a.cfg.DatastarContent == nil {
		return datastarCDN
	}
	return a.cfg.DatastarPath
}

func (a *App) ensureDatastarHandler() {
	a.datastarOnce.Do(func() {
		a.mux.HandleFunc("GET "+a.cfg.DatastarPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/javascript")
			_, _ = w.Write(a.cfg.DatastarContent)
		})
	})
}

type patchType int

const (
	patchTypeElements patchType = iota
	patchTypeSignals
)

type patch struct {
	typ     patchType
	content string
}

// New returns an app with default configuration.
func New() *App {
	a := &App{
		mux:      http.NewServeMux(),
		logger:   newConsoleLogger(zerolog.InfoLevel),
		registry: make(map[string]*Context),
		cfg: Options{
			ServerAddress: ":3000",
			DocumentTitle: "Clicker",
			DatastarPath:  defaultDatastarPath,
		},
	}

	a.mux.HandleFunc("GET /_sse", a.handleSSE)
	a.mux.HandleFunc("GET /_action/{id}", a.handleAction)
	a.mux.HandleFunc("POST /_session/close", a.handleSessionClose)
	return a
}

func (a *App) handleSSE(w http.ResponseWriter, r *http.Request) {
	var sigs map[string]any
	_ = datastar.ReadSignals(r, &sigs)
	cID, _ := sigs[ctxSignal].(string)

	c, err := a.getCtx(cID)
	if err != nil {
		a.logErr(nil, "sse stream failed to start: %v", err)
		http.Error(w, "unknown context", http.StatusNotFound)
		return
	}

	sse := datastar.NewSSE(w, r, datastar.WithCompression(datastar.WithBrotli(datastar.WithBrotliLevel(5))))

	// reconnecting clients send this id back as Last-Event-ID
	sse.Send(datastar.EventTypePatchElements, []string{}, datastar.WithSSEEventId("clicker"))

	c.sseConnected.Store(true)
	a.logDebug(c, "SSE connection established")

	go c.Sync()

	for {
		select {
		case <-sse.Context().Done():
			a.logDebug(c, "SSE connection ended")
			a.cleanupCtx(c)
			return
		case <-c.disposed:
			a.logDebug(c, "context disposed, closing SSE")
			return
		case p := <-c.patchChan:
			var err error
			switch p.typ {
			case patchTypeElements:
				err = sse.PatchElements(p.content)
			case patchTypeSignals:
				err = sse.PatchSignals([]byte(p.content))
			}
			// errors after the client left are expected noise
			if err != nil && sse.Context().Err() == nil {
				a.logErr(c, "patch failed: %v", err)
			}
		}
	}
}

func (a *App) handleAction(w http.ResponseWriter, r *http.Request) {
	actionID := r.PathValue("id")
	var sigs map[string]any
	_ = datastar.ReadSignals(r, &sigs)
	cID, _ := sigs[ctxSignal].(string)
	c, err := a.getCtx(cID)
	if err != nil {
		a.logErr(nil, "action '%s' failed: %v", actionID, err)
		http.Error(w, "unknown context", http.StatusNotFound)
		return
	}
	csrfToken, _ := sigs[csrfSignal].(string)
	if subtle.ConstantTimeCompare([]byte(csrfToken), []byte(c.csrfToken)) != 1 {
		a.logWarn(c, "action '%s' rejected: invalid CSRF token", actionID)
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}
	if c.actionLimiter != nil && !c.actionLimiter.Allow() {
		a.logWarn(c, "action '%s' rate limited", actionID)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	entry, err := c.getAction(actionID)
	if err != nil {
		a.logDebug(c, "action '%s' failed: %v", actionID, err)
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}
	if entry.limiter != nil && !entry.limiter.Allow() {
		a.logWarn(c, "action '%s' rate limited (per-action)", actionID)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			a.logErr(c, "action '%s' failed: %v", actionID, rec)
		}
	}()

	c.setRequest(r)
	c.injectSignals(sigs)
	entry.fn()
}

func (a *App) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.logErr(nil, "error reading body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c, err := a.getCtx(string(body))
	if err != nil {
		a.logErr(nil, "failed to handle session close: %v", err)
		return
	}
	a.logDebug(c, "session close event triggered")
	a.cleanupCtx(c)
}

func genRandID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func genCSRFToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func extractParams(pattern, path string) map[string]string {
	p := strings.Split(strings.Trim(pattern, "/"), "/")
	u := strings.Split(strings.Trim(path, "/"), "/")
	if len(p) != len(u) {
		return nil
	}
	params := make(map[string]string)
	for i := range p {
		if strings.HasPrefix(p[i], "{") && strings.HasSuffix(p[i], "}") {
			params[p[i][1:len(p[i])-1]] = u[i]
		}
	}
	return params
}
