package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smukkama/airfield-alerts/internal/alerting"
	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/observability"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// AlertService is the alert store as seen by the API. *database.DB satisfies it.
type AlertService interface {
	ListActiveAlerts(ctx context.Context, userID string, min database.Severity) ([]database.Alert, error)
	AcknowledgeAlert(ctx context.Context, id string, at time.Time) error
	DismissAlert(ctx context.Context, id string) error
}

// SweepRunner triggers an immediate sweep. *alerting.Sweeper satisfies it.
type SweepRunner interface {
	Run(ctx context.Context) (alerting.SweepResult, error)
}

// Deps are the collaborators of the API. Sweeps may be nil to omit POST /api/sweeps.
type Deps struct {
	Ready   ReadinessChecker
	Alerts  AlertService
	Sweeps  SweepRunner
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Clock   clockwork.Clock
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ListResponse wraps a list of alerts.
type ListResponse struct {
	Data  []database.Alert `json:"data"`
	Total int              `json:"total"`
}

// Server exposes health, readiness, metrics and the alert API.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(addr string, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	router := mux.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 2 * time.Minute, // POST /api/sweeps waits for a full sweep
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: deps.Logger,
	}

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.RegisterRoutes(router)

	return s
}

// RegisterRoutes mounts the /api routes on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/alerts", s.ListAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}/acknowledge", s.AcknowledgeAlert).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{id}/dismiss", s.DismissAlert).Methods(http.MethodPost)
	if s.deps.Sweeps != nil {
		api.HandleFunc("/sweeps", s.TriggerSweep).Methods(http.MethodPost)
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.deps.Ready.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListAlerts handles GET /api/alerts?user_id=&min_severity=
func (s *Server) ListAlerts(w http.ResponseWriter, r *http.Request) {
	const route = "/api/alerts"

	userID := r.URL.Query().Get("user_id")
	if userID != "" {
		if _, err := uuid.Parse(userID); err != nil {
			s.sendError(w, route, "invalid user_id, expected a UUID", http.StatusBadRequest)
			return
		}
	}

	minSeverity := database.SeverityLow
	if v := r.URL.Query().Get("min_severity"); v != "" {
		minSeverity = database.Severity(v)
		if !minSeverity.Valid() {
			s.sendError(w, route, "invalid min_severity, expected low, medium, high or critical", http.StatusBadRequest)
			return
		}
	}

	alerts, err := s.deps.Alerts.ListActiveAlerts(r.Context(), userID, minSeverity)
	if err != nil {
		s.logger.Error("list alerts failed", "user_id", userID, "error", err)
		s.sendError(w, route, "failed to retrieve alerts", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []database.Alert{}
	}

	s.sendJSON(w, route, http.StatusOK, ListResponse{Data: alerts, Total: len(alerts)})
}

// AcknowledgeAlert handles POST /api/alerts/{id}/acknowledge
func (s *Server) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	const route = "/api/alerts/{id}/acknowledge"

	id, ok := s.alertID(w, r, route)
	if !ok {
		return
	}
	at := s.deps.Clock.Now().UTC()
	err := s.deps.Alerts.AcknowledgeAlert(r.Context(), id, at)
	s.finishUpdate(w, route, id, err, map[string]any{"id": id, "acknowledged_at": at})
}

// DismissAlert handles POST /api/alerts/{id}/dismiss
func (s *Server) DismissAlert(w http.ResponseWriter, r *http.Request) {
	const route = "/api/alerts/{id}/dismiss"

	id, ok := s.alertID(w, r, route)
	if !ok {
		return
	}
	err := s.deps.Alerts.DismissAlert(r.Context(), id)
	s.finishUpdate(w, route, id, err, map[string]any{"id": id, "is_active": false})
}

// TriggerSweep handles POST /api/sweeps
func (s *Server) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	const route = "/api/sweeps"

	result, err := s.deps.Sweeps.Run(r.Context())
	if err != nil {
		s.logger.Error("manual sweep failed", "run_id", result.RunID, "error", err)
		s.sendError(w, route, "sweep failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if result.Skipped {
		status = http.StatusConflict
	}
	s.sendJSON(w, route, status, result)
}

func (s *Server) alertID(w http.ResponseWriter, r *http.Request, route string) (string, bool) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		s.sendError(w, route, "invalid alert id, expected a UUID", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (s *Server) finishUpdate(w http.ResponseWriter, route, id string, err error, body any) {
	switch {
	case errors.Is(err, database.ErrAlertNotFound):
		s.sendError(w, route, "alert not found", http.StatusNotFound)
	case err != nil:
		s.logger.Error("update alert failed", "alert_id", id, "error", err)
		s.sendError(w, route, "failed to update alert", http.StatusInternalServerError)
	default:
		s.sendJSON(w, route, http.StatusOK, body)
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, route string, status int, v any) {
	s.deps.Metrics.APIRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	writeJSON(w, status, v)
}

func (s *Server) sendError(w http.ResponseWriter, route, message string, status int) {
	s.sendJSON(w, route, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
