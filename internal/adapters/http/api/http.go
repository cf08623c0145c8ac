// Package api serves the AYON addon endpoints of aqsync, plus health,
// stats and the dashboard.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/aqsync/pkg/logger"
)

// UserHeader carries the AYON user a request acts for.
const UserHeader = "X-Ayon-User"

// APIKeyHeader carries the addon api key.
const APIKeyHeader = "X-Api-Key"

// maxBodyBytes bounds request bodies. Full sync batches are the largest.
const maxBodyBytes = 64 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ProjectDependencies
	SyncDependencies
	EventDependencies
	UserDependencies
}

// Server wires HTTP routes for the addon API.
type Server struct {
	prefix string
	apiKey string
	logger logger.Logger

	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	projectsHandler  *ProjectsHandler
	syncHandler      *SyncHandler
	eventsHandler    *EventsHandler
	usersHandler     *UsersHandler
	dashboardHandler *dashboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		logger:           logger.Get().Named("api"),
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		projectsHandler:  NewProjectsHandler(deps),
		syncHandler:      NewSyncHandler(deps),
		eventsHandler:    NewEventsHandler(deps),
		usersHandler:     NewUsersHandler(deps),
		dashboardHandler: newDashboardHandler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	addon := func(method, path, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(method+" "+s.prefix+path, MetricsMiddleware(RequestID(s.authorize(h)), endpoint))
	}
	addon(http.MethodGet, "/projects/pair", "pairings", s.projectsHandler.HandlePairings)
	addon(http.MethodPost, "/projects/pair", "pair", s.projectsHandler.HandlePair)
	addon(http.MethodPost, "/projects", "create_project", s.projectsHandler.HandleCreate)
	addon(http.MethodDelete, "/projects/{name}/pair", "unpair", s.projectsHandler.HandleUnpair)
	addon(http.MethodPatch, "/projects/{name}", "update_project", s.projectsHandler.HandleUpdateAttrib)
	addon(http.MethodPost, "/projects/{name}/sync", "trigger_sync", s.projectsHandler.HandleTriggerSync)
	addon(http.MethodPost, "/projects/{name}/bootstrap", "bootstrap", s.projectsHandler.HandleBootstrap)
	addon(http.MethodGet, "/projects/{name}/anatomy/attributes", "attributes", s.projectsHandler.HandleAttributes)
	addon(http.MethodPost, "/projects/{name}/sync/all", "sync_all", s.syncHandler.HandleSyncAll)
	addon(http.MethodPost, "/projects/{name}/sync/folder", "sync_folder", s.syncHandler.HandleSyncFolder)
	addon(http.MethodPost, "/projects/{name}/sync/task", "sync_task", s.syncHandler.HandleSyncTask)
	addon(http.MethodGet, "/users", "users", s.usersHandler.HandleUsers)
	addon(http.MethodGet, "/events/{id}", "event", s.eventsHandler.HandleGetEvent)

	s.logger.Debug(ctx, "routes registered", logger.String("prefix", s.prefix))
}

// authorize checks the api key when one is configured.
func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	if s.apiKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", NewKind("api.authorize", ErrUnauthorized))
			return
		}
		next(w, r)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type eventResponse struct {
	EventID string `json:"eventId"`
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

// writeFailure answers with the status err classifies to. Server-side
// failures are logged.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("request_id", w.Header().Get(RequestIDHeader)),
			logger.Error(err))
	}
	writeError(w, status, code, Wrap(op, err))
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, fmt.Errorf("decoding body: %w", err))
	}
	return nil
}

func userOf(r *http.Request) string {
	return r.Header.Get(UserHeader)
}
