// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/rally/internal/dispatch"
	"github.com/okian/rally/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// SubmitMatch builds and queues a Match Completed event. It returns
	// before delivery finishes.
	SubmitMatch(ctx context.Context, in model.MatchInput) (model.MatchEvent, *dispatch.Pending, error)

	// LastResult returns the most recent submission, if any.
	LastResult(ctx context.Context) (model.MatchEvent, bool)

	// Readiness of the analytics client.
	Ready() bool
	OnReady(fn func())

	// OnOutcome registers fn for every terminal delivery outcome.
	OnOutcome(fn func(model.Outcome))
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	matchesHandler *MatchesHandler
	statusHandler  *StatusHandler
	liveHandler    *LiveHandler
	hub            *Hub
	deps           Dependencies
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHub replaces the live feed hub, mainly for tests.
func WithHub(h *Hub) ServerOption {
	return func(s *Server) {
		if h != nil {
			s.hub = h
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		deps:          deps,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	s.matchesHandler = NewMatchesHandler(deps, s.hub)
	s.statusHandler = NewStatusHandler(deps)
	s.liveHandler = NewLiveHandler(deps, s.hub)
	return s
}

// Hub returns the live feed hub the server publishes to.
func (s *Server) Hub() *Hub { return s.hub }

// Register attaches all HTTP routes to mux and subscribes the live feed to
// readiness and delivery notifications. The hub is closed when ctx is done.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/matches/last", MetricsMiddleware(s.matchesHandler.HandleGetLast, "matches_last"))
	mux.HandleFunc("/matches", MetricsMiddleware(s.matchesHandler.HandlePostMatch, "matches"))
	mux.HandleFunc("/status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))
	mux.HandleFunc("/live", MetricsMiddleware(s.liveHandler.HandleLive, "live"))

	s.deps.OnReady(func() {
		s.hub.PublishStatus(ctx, true)
	})
	s.deps.OnOutcome(func(o model.Outcome) {
		s.hub.PublishDelivery(ctx, o)
	})

	go func() {
		<-ctx.Done()
		s.hub.Close()
	}()
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
