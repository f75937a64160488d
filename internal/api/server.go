package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"project-api/pkg/actor"
	"project-api/pkg/apperr"
	"project-api/pkg/auth"
	"project-api/pkg/dashboard"
	"project-api/pkg/events"
	"project-api/pkg/project"
	"project-api/pkg/task"
	"project-api/pkg/timer"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Projects  project.Store
	Tasks     task.Store
	Timers    *timer.Controller
	Dashboard *dashboard.Aggregator
	Auth      *auth.Service
	Bus       *events.Bus
	Logger    *slog.Logger

	// Events is the activity log; optional.
	Events events.Log

	// Ping reports database health; optional.
	Ping func(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	Deps
	mux     *http.ServeMux
	handler http.Handler
}

// New creates a new Server.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Bus == nil {
		d.Bus = events.NewBus()
	}
	s := &Server{Deps: d, mux: http.NewServeMux()}
	s.routes()
	s.handler = s.logRequests(s.mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Auth
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/token", s.handleToken)
	s.mux.HandleFunc("POST /api/token/refresh", s.handleTokenRefresh)
	s.mux.HandleFunc("POST /api/auth/logout", s.authed(s.handleLogout))
	s.mux.HandleFunc("GET /api/auth/me", s.authed(s.handleMe))

	// Projects
	s.mux.HandleFunc("GET /api/projects", s.authed(s.handleProjectList))
	s.mux.HandleFunc("POST /api/projects", s.authed(s.handleProjectCreate))
	s.mux.HandleFunc("GET /api/projects/{id}", s.authed(s.handleProjectGet))
	s.mux.HandleFunc("PATCH /api/projects/{id}", s.authed(s.handleProjectUpdate))
	s.mux.HandleFunc("PUT /api/projects/{id}", s.authed(s.handleProjectUpdate))
	s.mux.HandleFunc("DELETE /api/projects/{id}", s.authed(s.handleProjectDelete))

	// Tasks
	s.mux.HandleFunc("GET /api/tasks", s.authed(s.handleTaskList))
	s.mux.HandleFunc("POST /api/tasks", s.authed(s.handleTaskCreate))
	s.mux.HandleFunc("GET /api/tasks/{id}", s.authed(s.handleTaskGet))
	s.mux.HandleFunc("PATCH /api/tasks/{id}", s.authed(s.handleTaskUpdate))
	s.mux.HandleFunc("PUT /api/tasks/{id}", s.authed(s.handleTaskUpdate))
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.authed(s.handleTaskDelete))
	s.mux.HandleFunc("POST /api/tasks/{id}/start-timer", s.authed(s.handleStartTimer))
	s.mux.HandleFunc("POST /api/tasks/{id}/stop-timer", s.authed(s.handleStopTimer))

	// Dashboard
	s.mux.HandleFunc("GET /api/dashboard", s.authed(s.handleDashboard))

	// Events
	s.mux.HandleFunc("GET /api/events", s.authed(s.handleEventList))
	s.mux.HandleFunc("GET /api/events/types", s.authed(s.handleEventTypes))
	s.mux.HandleFunc("GET /api/events/stream", s.authed(s.handleEventStream))

	// System
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

type ctxKey struct{}

// actorFrom returns the authenticated actor put in the context by authed.
func actorFrom(ctx context.Context) *actor.Actor {
	a, _ := ctx.Value(ctxKey{}).(*actor.Actor)
	return a
}

// authed requires a valid bearer access token.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "authentication credentials were not provided")
			return
		}
		a, err := s.Auth.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.fail(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, a)))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// fail maps err to an HTTP status. Unexpected errors are logged and hidden.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, apperr.Message(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write json", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("invalid JSON: %v", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func queryBool(r *http.Request, key string) (*bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.Invalid("%s must be true or false", key)
	}
	return &b, nil
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.Invalid("%s must be an RFC 3339 timestamp", key)
	}
	return &t, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// maxPage keeps the offset well inside int range for any page size.
	maxPage = math.MaxInt32 / maxPageSize
)

type page struct {
	Number int
	Size   int
}

func (p page) offset() int { return (p.Number - 1) * p.Size }

func pageOf(r *http.Request) page {
	p := page{Number: queryInt(r, "page", 1), Size: queryInt(r, "page_size", defaultPageSize)}
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Number > maxPage {
		p.Number = maxPage
	}
	if p.Size < 1 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

type listResponse struct {
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Results  any `json:"results"`
}

func (s *Server) publish(ctx context.Context, typ, actorID, projectID, taskID string) {
	s.Bus.Publish(ctx, events.Event{Type: typ, ActorID: actorID, ProjectID: projectID, TaskID: taskID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Ping != nil {
		if err := s.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ok"})
}
