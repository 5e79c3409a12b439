// Package api provides the HTTP query surface consumed by dashboard view
// layers: state snapshots, the filtered log feed, notifications, theme and
// outbound commands.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resident-x/go-powerdash/internal/config"
	"github.com/resident-x/go-powerdash/internal/conn"
	"github.com/resident-x/go-powerdash/internal/domain"
	"github.com/resident-x/go-powerdash/internal/notify"
	"github.com/resident-x/go-powerdash/internal/prefs"
	"github.com/resident-x/go-powerdash/internal/store"
)

const maxCommandBody = 1 << 16 // 64 KB

// Server represents the HTTP API server exposing the reconciled state and
// log feed to view layers.
type Server struct {
	config    *config.Config
	server    *http.Server
	router    *mux.Router
	store     *store.Store
	notify    *notify.Router
	manager   *conn.Manager
	prefs     *prefs.Store
	logger    zerolog.Logger
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(cfg *config.Config, st *store.Store, nr *notify.Router, mgr *conn.Manager, pf *prefs.Store) *Server {
	router := mux.NewRouter()

	// Create logger with API component context
	logger := log.With().Str("component", "api").Logger()

	apiServer := &Server{
		config:    cfg,
		router:    router,
		store:     st,
		notify:    nr,
		manager:   mgr,
		prefs:     pf,
		logger:    logger,
		startTime: time.Now(),
	}

	apiServer.setupRoutes()

	return apiServer
}

// setupRoutes configures all API endpoint handlers.
func (s *Server) setupRoutes() {
	// API versioning
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/state/reset", s.handleResetState).Methods("POST")
	api.HandleFunc("/connection", s.handleConnection).Methods("GET")

	api.HandleFunc("/logs", s.handleGetLogs).Methods("GET")
	api.HandleFunc("/logs", s.handleClearLogs).Methods("DELETE")
	api.HandleFunc("/logs/export", s.handleExportLogs).Methods("GET")

	api.HandleFunc("/notifications", s.handleListNotifications).Methods("GET")
	api.HandleFunc("/notifications", s.handleClearNotifications).Methods("DELETE")
	api.HandleFunc("/notifications/{id}", s.handleRemoveNotification).Methods("DELETE")

	api.HandleFunc("/theme", s.handleGetTheme).Methods("GET")
	api.HandleFunc("/theme", s.handleSetTheme).Methods("PUT")

	api.HandleFunc("/commands/{name}", s.handleSendCommand).Methods("POST")

	api.HandleFunc("/schedules", s.handleAddSchedule).Methods("POST")
	api.HandleFunc("/schedules/{id}", s.handleRemoveSchedule).Methods("DELETE")
	api.HandleFunc("/manual-mode/toggle", s.handleToggleManualMode).Methods("POST")
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.API.Host, s.config.API.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("host", s.config.API.Host).
			Int("port", s.config.API.Port).
			Msg("Starting HTTP API server")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping HTTP API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
	}

	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleStatus returns server status information.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	session := s.manager.Session()

	status := map[string]interface{}{
		"status":        "ok",
		"uptime":        time.Since(s.startTime).String(),
		"connection":    session.Status.String(),
		"logCount":      s.store.LogLen(),
		"notifications": s.notify.Len(),
	}

	s.writeJSON(w, status, http.StatusOK)
}

// handleState returns the current device state snapshot.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.store.Snapshot(), http.StatusOK)
}

// handleResetState restores the device state defaults. The theme survives,
// it is a durable preference rather than session state.
func (s *Server) handleResetState(w http.ResponseWriter, _ *http.Request) {
	s.store.Reset()
	s.writeJSON(w, s.store.Snapshot(), http.StatusOK)
}

// handleConnection returns the connection session view.
func (s *Server) handleConnection(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.manager.Session(), http.StatusOK)
}

// logFilter builds a store filter from query parameters.
func logFilter(r *http.Request) store.Filter {
	q := r.URL.Query()
	return store.Filter{
		Type:   q.Get("type"),
		Source: q.Get("source"),
		Search: q.Get("search"),
	}
}

// handleGetLogs returns the filtered log feed, newest first.
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.store.Log(logFilter(r))

	s.writeJSON(w, map[string]interface{}{
		"logs":  entries,
		"count": len(entries),
	}, http.StatusOK)
}

// handleClearLogs discards the log buffer.
func (s *Server) handleClearLogs(w http.ResponseWriter, _ *http.Request) {
	s.store.ClearLog()
	w.WriteHeader(http.StatusNoContent)
}

// handleExportLogs renders the filtered log as a downloadable document.
func (s *Server) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	records := s.store.Export(logFilter(r))

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	var (
		data []byte
		err  error
		mime string
	)
	switch format {
	case "json":
		data, err = store.EncodeJSON(records)
		mime = "application/json"
	case "yaml":
		data, err = store.EncodeYAML(records)
		mime = "application/yaml"
	default:
		s.writeError(w, fmt.Sprintf("unsupported export format %q", format), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode log export")
		s.writeError(w, "export encoding failed", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("system-logs-%s.%s", time.Now().Format("2006-01-02"), format)
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write export response")
	}
}

// handleListNotifications returns the notification feed, newest first.
func (s *Server) handleListNotifications(w http.ResponseWriter, _ *http.Request) {
	notifications := s.notify.List()

	s.writeJSON(w, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	}, http.StatusOK)
}

// handleClearNotifications empties the notification feed.
func (s *Server) handleClearNotifications(w http.ResponseWriter, _ *http.Request) {
	s.notify.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveNotification dismisses a single notification.
func (s *Server) handleRemoveNotification(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.notify.Remove(vars["id"])
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTheme returns the current theme choice.
func (s *Server) handleGetTheme(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"theme": s.store.Snapshot().Theme.String()}, http.StatusOK)
}

// handleSetTheme updates and persists the theme choice. Persistence failures
// are swallowed by the preference store; the state update always succeeds.
func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Theme string `json:"theme"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	theme, ok := domain.ParseTheme(body.Theme)
	if !ok {
		s.writeError(w, fmt.Sprintf("unknown theme %q", body.Theme), http.StatusBadRequest)
		return
	}

	s.store.SetTheme(theme)
	if s.prefs != nil {
		s.prefs.SaveTheme(theme)
	}

	s.writeJSON(w, map[string]string{"theme": theme.String()}, http.StatusOK)
}

// handleSendCommand forwards an outbound command to the device, fire and
// forget. A 202 only means the command was handed to the session; delivery
// is confirmed, if at all, by a later command_ack notification.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	var payload json.RawMessage
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		s.writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if !json.Valid(body) {
			s.writeError(w, "command payload must be valid JSON", http.StatusBadRequest)
			return
		}
		payload = json.RawMessage(body)
	}

	if err := s.manager.Send(name, payload); err != nil {
		s.logger.Warn().Str("command", name).Err(err).Msg("Command send failed")
	}

	s.writeJSON(w, map[string]string{"command": name, "status": "accepted"}, http.StatusAccepted)
}

// handleAddSchedule appends a view-defined schedule entry.
func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	var sched domain.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil || sched.ID == "" {
		s.writeError(w, "schedule requires an id", http.StatusBadRequest)
		return
	}

	s.store.AddSchedule(sched)
	s.writeJSON(w, sched, http.StatusCreated)
}

// handleRemoveSchedule deletes a schedule entry.
func (s *Server) handleRemoveSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.store.RemoveSchedule(vars["id"])
	w.WriteHeader(http.StatusNoContent)
}

// handleToggleManualMode flips manual mode.
func (s *Server) handleToggleManualMode(w http.ResponseWriter, _ *http.Request) {
	mode := s.store.ToggleManualMode()
	s.writeJSON(w, map[string]bool{"isManualMode": mode}, http.StatusOK)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode error response")
	}
}
