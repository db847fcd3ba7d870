// Package widget implements the click counter: it loads the count from the
// click service when mounted, increments or resets it on button presses and
// renders the loading, error and count state.
package widget

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/ryanhamamura/clicker/clicksapi"
)

// Requester sends one body-less request to the click service.
// *clicksapi.Client implements it.
type Requester interface {
	Do(ctx context.Context, method, path string, header http.Header) (*clicksapi.Clicks, error)
}

// State is what the widget renders from.
type State struct {
	Loading bool
	Err     error
	Data    *clicksapi.Clicks
}

// Clicks returns the last known count, 0 when nothing was loaded yet.
func (s State) Clicks() int {
	if s.Data == nil {
		return 0
	}
	return s.Data.Clicks
}

func (s State) PrimaryLabel() string {
	if n := s.Clicks(); n != 0 {
		return "Clicks: " + strconv.Itoa(n)
	}
	return "Click Me!"
}

func (s State) PrimaryDisabled() bool {
	return s.Loading
}

func (s State) ResetDisabled() bool {
	return s.Clicks() == 0
}

// Widget holds the state of one counter. Triggers return immediately; the
// request runs on its own goroutine and the last one to settle wins.
type Widget struct {
	client   Requester
	header   http.Header
	onChange func()
	logger   zerolog.Logger

	mu        sync.Mutex
	state     State
	mountOnce sync.Once
	inflight  sync.WaitGroup
}

type Option func(*Widget)

// WithHeader adds headers to every request the widget sends.
func WithHeader(header http.Header) Option {
	return func(w *Widget) {
		for k, vs := range header {
			for _, v := range vs {
				w.header.Add(k, v)
			}
		}
	}
}

// WithOnChange sets the func called after every state change, outside the
// state lock.
func WithOnChange(f func()) Option {
	return func(w *Widget) {
		w.onChange = f
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(w *Widget) {
		w.logger = l
	}
}

// New returns a widget in its initial state: loading, no data, no error.
func New(client Requester, opts ...Option) *Widget {
	w := &Widget{
		client: client,
		header: make(http.Header),
		logger: zerolog.Nop(),
		state:  State{Loading: true},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns a copy of the current state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Mount loads the current count. Only the first call sends a request.
func (w *Widget) Mount() {
	w.mountOnce.Do(func() {
		w.perform(http.MethodGet, clicksapi.PathClicks)
	})
}

// Click increments the count.
func (w *Widget) Click() {
	w.perform(http.MethodPost, clicksapi.PathClick)
}

// Reset sets the count back to zero.
func (w *Widget) Reset() {
	w.perform(http.MethodPost, clicksapi.PathReset)
}

// Wait blocks until every request started so far has settled.
func (w *Widget) Wait() {
	w.inflight.Wait()
}

func (w *Widget) perform(method, path string) {
	w.mu.Lock()
	w.state.Loading = true
	w.mu.Unlock()
	w.changed()

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		// no cancellation: the request outlives the page if it has to
		clicks, err := w.client.Do(context.Background(), method, path, w.header)

		w.mu.Lock()
		if err != nil {
			w.state.Err = err
		} else {
			w.state.Data = clicks
			w.state.Err = nil
		}
		w.state.Loading = false
		w.mu.Unlock()

		if err != nil {
			w.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("click request failed")
		} else {
			w.logger.Debug().Str("method", method).Str("path", path).Int("clicks", clicks.Clicks).Msg("click request settled")
		}
		w.changed()
	}()
}

func (w *Widget) changed() {
	if w.onChange != nil {
		w.onChange()
	}
}
