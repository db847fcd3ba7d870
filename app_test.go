package clicker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/ryanhamamura/clicker/h"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuietApp() *App {
	a := New()
	nop := zerolog.Nop()
	a.Config(Options{Logger: &nop})
	return a
}

// loadPage serves one page load and returns the context it registered.
func loadPage(t *testing.T, a *App, path string) (*Context, string) {
	t.Helper()
	before := make(map[string]bool)
	a.registryMu.RLock()
	for id := range a.registry {
		before[id] = true
	}
	a.registryMu.RUnlock()

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	require.Equal(t, http.StatusOK, w.Code)

	a.registryMu.RLock()
	defer a.registryMu.RUnlock()
	for id, c := range a.registry {
		if !before[id] {
			return c, w.Body.String()
		}
	}
	t.Fatal("page load registered no context")
	return nil, ""
}

func actionRequest(ctxID, csrf, actionID string, extra map[string]any) *http.Request {
	sigs := map[string]any{ctxSignal: ctxID, csrfSignal: csrf}
	for k, v := range extra {
		sigs[k] = v
	}
	b, _ := json.Marshal(sigs)
	return httptest.NewRequest("GET", "/_action/"+actionID+"?datastar="+url.QueryEscape(string(b)), nil)
}

func TestPageRoute(t *testing.T) {
	a := newQuietApp()
	a.Page("/", func(c *Context) {
		c.View(func() h.H {
			return h.Div(h.Text("Hello Clicker!"))
		})
	})

	_, body := loadPage(t, a, "/")
	assert.Contains(t, body, "Hello Clicker!")
	assert.Contains(t, body, "<!doctype html>")
	assert.Contains(t, body, datastarCDN)
	assert.Contains(t, body, "@get(&#39;/_sse&#39;)")
}

func TestCustomDatastarContent(t *testing.T) {
	a := newQuietApp()
	a.Config(Options{
		DatastarPath:    "/assets/datastar.js",
		DatastarContent: []byte("// Custom Datastar Script"),
	})
	a.Page("/", func(c *Context) {
		c.View(func() h.H { return h.Div() })
	})

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/assets/datastar.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/javascript", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Custom Datastar Script")

	_, body := loadPage(t, a, "/")
	assert.Contains(t, body, `src="/assets/datastar.js"`)
	assert.NotContains(t, body, datastarCDN)
}

func TestConfig(t *testing.T) {
	a := newQuietApp()
	a.Config(Options{DocumentTitle: "Test", ServerAddress: ":9999", ContextTTL: time.Minute})
	assert.Equal(t, "Test", a.cfg.DocumentTitle)
	assert.Equal(t, ":9999", a.cfg.ServerAddress)
	assert.Equal(t, time.Minute, a.cfg.ContextTTL)

	a.Config(Options{})
	assert.Equal(t, "Test", a.cfg.DocumentTitle, "zero options keep current values")
}

func TestConfigPlugins(t *testing.T) {
	a := newQuietApp()
	a.Config(Options{Plugins: []Plugin{
		nil,
		func(a *App) { a.AppendToHead(h.Link(h.Rel("stylesheet"), h.Href("/clicker.css"))) },
	}})
	a.Page("/", func(c *Context) {
		c.View(func() h.H { return h.Div() })
	})
	_, body := loadPage(t, a, "/")
	assert.Contains(t, body, `href="/clicker.css"`)
}

func TestPagePanicsOnNoView(t *testing.T) {
	assert.Panics(t, func() {
		a := newQuietApp()
		a.Page("/", func(c *Context) {})
	})
}

func TestOnMountRunsOnlyForRealPageLoads(t *testing.T) {
	var mounts atomic.Int32
	a := newQuietApp()
	a.Page("/", func(c *Context) {
		c.OnMount(func() { mounts.Add(1) })
		c.View(func() h.H { return h.Div() })
	})
	assert.Equal(t, int32(0), mounts.Load())

	loadPage(t, a, "/")
	loadPage(t, a, "/")
	assert.Equal(t, int32(2), mounts.Load())
}

func TestActionRoundTrip(t *testing.T) {
	var trigger *ActionTrigger
	var step *Signal
	count := 0
	a := newQuietApp()
	a.Page("/", func(c *Context) {
		step = c.Signal(1)
		trigger = c.Action(func() {
			count += step.Int()
			c.Sync()
		})
		c.View(func() h.H {
			return h.Button(h.Textf("%d", count), trigger.OnClick())
		})
	})

	c, body := loadPage(t, a, "/")
	assert.Contains(t, body, "/_action/"+trigger.ID())

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, actionRequest(c.id, c.csrfToken, trigger.ID(), map[string]any{step.ID(): 5}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, count)

	select {
	case p := <-c.patchChan:
		assert.Equal(t, patchTypeElements, p.typ)
		assert.Contains(t, p.content, ">5<")
	default:
		t.Fatal("sync queued no patch")
	}
}

func TestActionRejections(t *testing.T) {
	var trigger *ActionTrigger
	a := newQuietApp()
	a.Page("/", func(c *Context) {
		trigger = c.Action(func() {})
		c.View(func() h.H { return h.Div() })
	})
	c, _ := loadPage(t, a, "/")

	testcases := []struct {
		desc   string
		req    *http.Request
		status int
	}{
		{"bad csrf", actionRequest(c.id, "nope", trigger.ID(), nil), http.StatusForbidden},
		{"unknown context", actionRequest("missing", c.csrfToken, trigger.ID(), nil), http.StatusNotFound},
		{"unknown action", actionRequest(c.id, c.csrfToken, "deadbeef", nil), http.StatusNotFound},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			w := httptest.NewRecorder()
			a.Handler().ServeHTTP(w, tc.req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestActionPanicIsRecovered(t *testing.T) {
	var trigger *ActionTrigger
	a := newQuietApp()
	a.Page("/", func(c *Context) {
		trigger = c.Action(func() { panic("boom") })
		c.View(func() h.H { return h.Div() })
	})
	c, _ := loadPage(t, a, "/")

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		a.Handler().ServeHTTP(w, actionRequest(c.id, c.csrfToken, trigger.ID(), nil))
	})
}

func TestSessionCloseDisposesContext(t *testing.T) {
	a := newQuietApp()
	a.Page("/", func(c *Context) {
		c.View(func() h.H { return h.Div() })
	})
	c, _ := loadPage(t, a, "/")

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/_session/close", strings.NewReader(c.id)))

	_, err := a.getCtx(c.id)
	assert.Error(t, err)
	select {
	case <-c.Done():
	default:
		t.Fatal("context not disposed")
	}
}

func TestSSEUnknownContext(t *testing.T) {
	a := newQuietApp()
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/_sse", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReapOrphanedContexts(t *testing.T) {
	a := newQuietApp()
	a.Page("/", func(c *Context) {
		c.View(func() h.H { return h.Div() })
	})
	stale, _ := loadPage(t, a, "/")
	live, _ := loadPage(t, a, "/")
	connected, _ := loadPage(t, a, "/")

	stale.createdAt = time.Now().Add(-time.Hour)
	connected.createdAt = time.Now().Add(-time.Hour)
	connected.sseConnected.Store(true)

	a.reapOrphanedContexts(time.Minute)

	_, err := a.getCtx(stale.id)
	assert.Error(t, err)
	_, err = a.getCtx(live.id)
	assert.NoError(t, err)
	_, err = a.getCtx(connected.id)
	assert.NoError(t, err)
}

func TestShutdownDrainsContexts(t *testing.T) {
	a := newQuietApp()
	a.Page("/", func(c *Context) {
		c.View(func() h.H { return h.Div() })
	})
	c, _ := loadPage(t, a, "/")

	a.Shutdown()

	assert.Empty(t, a.registry)
	select {
	case <-c.Done():
	default:
		t.Fatal("context not disposed")
	}
}

func TestGetPathParam(t *testing.T) {
	a := newQuietApp()
	a.Page("/counters/{name}", func(c *Context) {
		c.View(func() h.H { return h.Div() })
	})
	c, _ := loadPage(t, a, "/counters/kitchen")
	assert.Equal(t, "kitchen", c.GetPathParam("name"))
	assert.Equal(t, "", c.GetPathParam("missing"))
}

func TestRemoteAddr(t *testing.T) {
	a := newQuietApp()
	a.Page("/", func(c *Context) {
		c.View(func() h.H { return h.Div() })
	})
	c, _ := loadPage(t, a, "/")
	// httptest.NewRequest uses 192.0.2.1:1234
	assert.Equal(t, "192.0.2.1", c.RemoteAddr())
}

func TestExtractParams(t *testing.T) {
	assert.Equal(t, map[string]string{"id": "7"}, extractParams("/c/{id}", "/c/7"))
	assert.Nil(t, extractParams("/c/{id}", "/c/7/x"))
	assert.Empty(t, extractParams("/", "/"))
}

func TestOnDisposeRunsOnce(t *testing.T) {
	var disposed atomic.Int32
	a := newQuietApp()
	a.Page("/", func(c *Context) {
		comp := c.Component(func(cc *Context) {
			cc.OnDispose(func() { disposed.Add(1) })
			cc.View(func() h.H { return h.Div() })
		})
		c.View(func() h.H { return h.Div(comp()) })
	})
	// the registration dry run disposes its own context
	assert.Equal(t, int32(1), disposed.Load())

	c, _ := loadPage(t, a, "/")
	a.cleanupCtx(c)
	a.cleanupCtx(c)
	assert.Equal(t, int32(2), disposed.Load())
}
