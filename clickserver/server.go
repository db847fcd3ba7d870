// Package clickserver is a small implementation of the click service the
// widget talks to, for local development and end-to-end tests. Counters are
// kept per client: the X-Client-ID header when present, the client address
// otherwise.
package clickserver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jub0bs/cors"
	"github.com/rs/zerolog"
	"github.com/ryanhamamura/clicker/clicksapi"
)

// Subject is where change events are published.
const Subject = "clicks.changed"

const (
	OpClick = "click"
	OpReset = "reset"
)

// Event describes a counter change.
type Event struct {
	Client string `json:"client"`
	Clicks int    `json:"clicks"`
	Op     string `json:"op"`
}

// Publisher receives change events. clicknats.NATS implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Server struct {
	store  Store
	pub    Publisher
	logger zerolog.Logger
	router *chi.Mux
}

type Option func(*Server)

func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.pub = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the router. The only failure is an invalid CORS setup.
func New(store Store, opts ...Option) (*Server, error) {
	s := &Server{
		store:  store,
		logger: zerolog.Nop(),
		router: chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	corsMiddleware, err := cors.NewMiddleware(cors.Config{
		Origins: []string{"*"},
		Methods: []string{http.MethodGet, http.MethodPost},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create CORS middleware: %w", err)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)
	s.router.Use(corsMiddleware.Wrap)

	s.router.Get(clicksapi.PathClicks, s.handleGet)
	s.router.Post(clicksapi.PathClick, s.handleClick)
	s.router.Post(clicksapi.PathReset, s.handleReset)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// clientKey identifies the counter for r. RealIP has already replaced
// RemoteAddr with the forwarded address when one was sent.
func clientKey(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return "id:" + id
	}
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	client := clientKey(r)
	if client == "" {
		http.Error(w, "unknown client", http.StatusUnauthorized)
		return
	}
	n, err := s.store.Get(r.Context(), client)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeClicks(w, n)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	client := clientKey(r)
	if client == "" {
		http.Error(w, "unknown client", http.StatusUnauthorized)
		return
	}
	n, err := s.store.Increment(r.Context(), client)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.publish(Event{Client: client, Clicks: n, Op: OpClick})
	writeClicks(w, n)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	client := clientKey(r)
	if client == "" {
		http.Error(w, "unknown client", http.StatusUnauthorized)
		return
	}
	if err := s.store.Delete(r.Context(), client); err != nil {
		s.internalError(w, r, err)
		return
	}
	s.publish(Event{Client: client, Clicks: 0, Op: OpReset})
	writeClicks(w, 0)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("store failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) publish(evt Event) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal change event")
		return
	}
	if err := s.pub.Publish(Subject, data); err != nil {
		s.logger.Warn().Err(err).Str("client", evt.Client).Msg("publish change event")
	}
}

func writeClicks(w http.ResponseWriter, n int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(clicksapi.Clicks{Clicks: n})
}
