package clicker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/ryanhamamura/clicker/h"
	"golang.org/x/time/rate"
)

// Context is one live page instance: its state, actions, signals and view.
// Components get their own Context that shares the page's SSE stream,
// action registry and signals.
type Context struct {
	id             string
	route          string
	app            *App
	view           func() h.H
	routeParams    map[string]string
	pageCtx        *Context
	patchChan      chan patch
	actionRegistry map[string]actionEntry
	signals        *sync.Map
	mountFns       []func()
	disposeFns     []func()
	mu             sync.RWMutex
	reqCtx         context.Context
	remoteAddr     string
	disposed       chan struct{}
	disposeOnce    sync.Once
	csrfToken      string
	actionLimiter  *rate.Limiter
	createdAt      time.Time
	sseConnected   atomic.Bool
}

// ID returns the context id. It is also the DOM id of the view root.
func (c *Context) ID() string {
	return c.id
}

// View sets the func rendering this context. Its output is wrapped in a div
// carrying the context id so patches can replace it.
func (c *Context) View(f func() h.H) {
	if f == nil {
		panic("nil viewfn")
	}
	c.view = func() h.H { return h.Div(h.ID(c.id), f()) }
}

// Component runs initFn on a child context and returns its view fn, to be
// placed inside the parent view. Each call creates independent state.
//
// Example:
//
//	app.Page("/", func(c *clicker.Context) {
//		first := c.Component(widget.Component(client))
//		second := c.Component(widget.Component(client))
//		c.View(func() h.H { return h.Div(first(), second()) })
//	})
func (c *Context) Component(initFn func(c *Context)) func() h.H {
	page := c.page()
	compCtx := newContext(c.id+"/_component/"+genRandID(), c.route, c.app)
	compCtx.pageCtx = page
	initFn(compCtx)
	return compCtx.view
}

func (c *Context) page() *Context {
	if c.pageCtx != nil {
		return c.pageCtx
	}
	return c
}

// Action registers f and returns a trigger to bind it to DOM events.
//
// Example:
//
//	n := 0
//	inc := c.Action(func() {
//		n++
//		c.Sync()
//	})
//
//	c.View(func() h.H {
//		return h.Button(h.Textf("%d", n), inc.OnClick())
//	})
func (c *Context) Action(f func(), opts ...ActionOption) *ActionTrigger {
	id := genRandID()
	if f == nil {
		c.app.logErr(c, "failed to bind action '%s' to context: nil func", id)
		return nil
	}
	entry := actionEntry{fn: f}
	for _, opt := range opts {
		opt(&entry)
	}

	page := c.page()
	page.mu.Lock()
	page.actionRegistry[id] = entry
	page.mu.Unlock()
	return &ActionTrigger{id: id}
}

func (c *Context) getAction(id string) (actionEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.actionRegistry[id]; ok {
		return e, nil
	}
	return actionEntry{}, fmt.Errorf("action '%s' not found", id)
}

// OnMount registers f to run once the page has been rendered for a real
// request. Hooks do not run during route registration.
func (c *Context) OnMount(f func()) {
	if f == nil {
		return
	}
	page := c.page()
	page.mu.Lock()
	page.mountFns = append(page.mountFns, f)
	page.mu.Unlock()
}

// OnDispose registers f to run once when the page context is disposed,
// whether by the browser leaving, the reaper or shutdown.
func (c *Context) OnDispose(f func()) {
	if f == nil {
		return
	}
	page := c.page()
	page.mu.Lock()
	page.disposeFns = append(page.disposeFns, f)
	page.mu.Unlock()
}

func (c *Context) mount() {
	c.mu.Lock()
	fns := c.mountFns
	c.mountFns = nil
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

// Signal creates a browser-side reactive value initialised to v. The
// browser sends all signals back with every action; values set on the
// server are pushed on the next Sync or SyncSignals.
func (c *Context) Signal(v any) *Signal {
	sigID := "s" + genRandID()
	if v == nil {
		c.app.logErr(c, "failed to bind signal: nil signal value")
		return &Signal{
			id:  sigID,
			val: "error",
			err: fmt.Errorf("context '%s' failed to bind signal '%s': nil signal value", c.id, sigID),
		}
	}
	sig := &Signal{
		id:      sigID,
		val:     v,
		changed: true,
	}
	c.page().signals.Store(sigID, sig)
	return sig
}

func (c *Context) injectSignals(sigs map[string]any) {
	if sigs == nil {
		c.app.logErr(c, "signal injection failed: nil signals")
		return
	}
	for sigID, val := range sigs {
		item, ok := c.signals.Load(sigID)
		if !ok {
			c.signals.Store(sigID, &Signal{id: sigID, val: val})
			continue
		}
		if sig, ok := item.(*Signal); ok {
			sig.inject(val)
		}
	}
}

func (c *Context) prepareSignalsForPatch() map[string]any {
	updated := make(map[string]any)
	c.page().signals.Range(func(key, value any) bool {
		sig, ok := value.(*Signal)
		if !ok {
			return true
		}
		val, changed, err := sig.snapshot()
		if err != nil {
			c.app.logWarn(c, "signal '%s' is out of sync: %v", sig.id, err)
			return true
		}
		if changed {
			updated[key.(string)] = val
		}
		return true
	})
	return updated
}

// sendPatch queues p on the page stream. When nobody is listening or the
// queue is full the patch is dropped; the next Sync after the stream opens
// carries the full view anyway.
func (c *Context) sendPatch(p patch) {
	select {
	case c.page().patchChan <- p:
	default:
	}
}

// Sync pushes this context's view and any changed signals to the browser.
func (c *Context) Sync() {
	var b bytes.Buffer
	if err := c.view().Render(&b); err != nil {
		c.app.logErr(c, "sync view failed: %v", err)
		return
	}
	c.sendPatch(patch{patchTypeElements, b.String()})
	c.SyncSignals()
}

// SyncSignals pushes changed signals only.
func (c *Context) SyncSignals() {
	updated := c.prepareSignalsForPatch()
	if len(updated) == 0 {
		return
	}
	out, err := json.Marshal(updated)
	if err != nil {
		c.app.logErr(c, "sync signals failed: %v", err)
		return
	}
	c.sendPatch(patch{patchTypeSignals, string(out)})
}

func (c *Context) dispose() {
	c.disposeOnce.Do(func() {
		close(c.disposed)
		c.mu.Lock()
		fns := c.disposeFns
		c.disposeFns = nil
		c.mu.Unlock()
		for _, f := range fns {
			f()
		}
	})
}

// Done is closed when the page context is disposed.
func (c *Context) Done() <-chan struct{} {
	return c.page().disposed
}

func (c *Context) setRequest(r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqCtx = r.Context()
	if c.remoteAddr == "" {
		c.remoteAddr = remoteHost(r)
	}
}

func (c *Context) requestContext() context.Context {
	page := c.page()
	page.mu.RLock()
	defer page.mu.RUnlock()
	return page.reqCtx
}

// RemoteAddr is the host of the client that loaded the page.
func (c *Context) RemoteAddr() string {
	page := c.page()
	page.mu.RLock()
	defer page.mu.RUnlock()
	return page.remoteAddr
}

func (c *Context) injectRouteParams(params map[string]string) {
	if params == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routeParams = maps.Clone(params)
}

// GetPathParam returns the named route parameter of the page request, or ""
// when absent.
//
// Example:
//
//	app.Page("/counters/{name}", func(c *clicker.Context) {
//		name := c.GetPathParam("name")
//		...
//	})
func (c *Context) GetPathParam(param string) string {
	page := c.page()
	page.mu.RLock()
	defer page.mu.RUnlock()
	return page.routeParams[param]
}

// Logger returns the app logger tagged with this context id.
func (c *Context) Logger() zerolog.Logger {
	return c.app.logger.With().Str(ctxSignal, c.id).Logger()
}

// Session returns the browser session of the current request. Without a
// configured SessionManager every call is a no-op.
func (c *Context) Session() *Session {
	return &Session{
		ctx:     c.requestContext(),
		manager: c.app.sessionManager,
	}
}

func newContext(id string, route string, a *App) *Context {
	if a == nil {
		panic("create context failed: app pointer is nil")
	}
	return &Context{
		id:             id,
		route:          route,
		app:            a,
		routeParams:    make(map[string]string),
		actionRegistry: make(map[string]actionEntry),
		signals:        new(sync.Map),
		patchChan:      make(chan patch, 8),
		disposed:       make(chan struct{}),
		csrfToken:      genCSRFToken(),
		actionLimiter:  newLimiter(a.actionRateLimit, defaultActionRate, defaultActionBurst),
		createdAt:      time.Now(),
	}
}
