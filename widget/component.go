package widget

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ryanhamamura/clicker"
	"github.com/ryanhamamura/clicker/h"
)

const sessionClientKey = "clicker.client-id"

// Render draws s. onClick and onReset are the attributes wiring the two
// buttons; extra attributes go on the primary button.
func Render(s State, onClick, onReset h.H, primaryAttrs ...h.H) h.H {
	var errNode h.H
	if s.Err != nil {
		errNode = h.P(h.Class("clicker-error"), h.Textf("Error: %s", s.Err.Error()))
	}
	primary := []h.H{
		h.Class("clicker-primary"),
		h.Text(s.PrimaryLabel()),
		onClick,
		h.If(s.PrimaryDisabled(), h.Disabled()),
	}
	primary = append(primary, primaryAttrs...)
	return h.Div(
		h.Class("clicker"),
		errNode,
		h.Button(primary...),
		h.Button(
			h.Class("clicker-reset"),
			h.Text("Reset"),
			onReset,
			h.If(s.ResetDisabled(), h.Disabled()),
		),
	)
}

// Component returns a page or component init func running one counter
// against client. The count is fetched when the page mounts.
//
// Example:
//
//	app.Page("/", widget.Component(clicksapi.New(baseURL)))
func Component(client Requester, opts ...Option) func(c *clicker.Context) {
	return func(c *clicker.Context) {
		bind(c, client, opts...)
	}
}

// liveView ties one widget to a page context: its actions, the loading
// signal the browser disables the primary button with, and the pushes.
type liveView struct {
	ctx     *clicker.Context
	widget  *Widget
	loading *clicker.Signal
	click   *clicker.ActionTrigger
	reset   *clicker.ActionTrigger

	// held across reading the state and pushing it, so a slow settle cannot
	// overwrite the signal with a value older than the state
	pushMu sync.Mutex
	gone   atomic.Bool
}

func bind(c *clicker.Context, client Requester, opts ...Option) *liveView {
	v := &liveView{ctx: c, loading: c.Signal(true)}
	c.OnDispose(func() { v.gone.Store(true) })

	all := []Option{WithHeader(identityHeader(c)), WithLogger(c.Logger())}
	all = append(all, opts...)
	all = append(all, WithOnChange(v.push))
	v.widget = New(client, all...)

	v.click = c.Action(v.widget.Click)
	v.reset = c.Action(v.widget.Reset)
	c.OnMount(v.widget.Mount)

	c.View(func() h.H {
		return Render(v.widget.State(),
			v.click.OnClick(clicker.WithSignal(v.loading, true)),
			v.reset.OnClick(),
			h.Data("attr:disabled", "$"+v.loading.ID()),
		)
	})
	return v
}

func (v *liveView) push() {
	v.pushMu.Lock()
	defer v.pushMu.Unlock()
	// requests outlive the page; nobody is listening anymore
	if v.gone.Load() {
		return
	}
	v.loading.SetValue(v.widget.State().Loading)
	v.ctx.Sync()
}

// identityHeader tells the click service which browser the request is made
// for. Without it every page served by this process would share a single
// counter keyed on the server's own address.
func identityHeader(c *clicker.Context) http.Header {
	header := make(http.Header)
	if addr := c.RemoteAddr(); addr != "" {
		header.Set("X-Forwarded-For", addr)
		header.Set("Forwarded", forwardedFor(addr))
	}
	s := c.Session()
	if !s.Enabled() {
		return header
	}
	id := s.GetString(sessionClientKey)
	if id == "" {
		id = newClientID()
		s.Set(sessionClientKey, id)
	}
	header.Set("X-Client-ID", id)
	return header
}

func forwardedFor(addr string) string {
	if strings.Contains(addr, ":") {
		return `for="[` + addr + `]"`
	}
	return "for=" + addr
}

func newClientID() string {
	return uuid.NewString()
}
