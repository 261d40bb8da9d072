// Package httpapi exposes a running scheduler over HTTP: status, task
// inspection and abort, demo submissions, execution history and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Swind/go-affinity-scheduler/core"
	"github.com/Swind/go-affinity-scheduler/internal/journal"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Server is the HTTP API of one scheduler.
type Server struct {
	router  chi.Router
	sched   *core.Scheduler
	journal *journal.Store
	metrics http.Handler
	logger  *slog.Logger

	mu      sync.RWMutex
	windows map[string]core.Window
}

// Option configures a Server.
type Option func(*Server)

// WithJournal serves /executions from the SQLite journal instead of the
// in-memory history.
func WithJournal(store *journal.Store) Option {
	return func(s *Server) { s.journal = store }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates a Server for sched.
func New(sched *core.Scheduler, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		sched:   sched,
		logger:  logger,
		windows: make(map[string]core.Window),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// AddWindow makes w addressable by name in task submissions.
func (s *Server) AddWindow(w core.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[w.Name()] = w
}

// RemoveWindow forgets the window with the given name.
func (s *Server) RemoveWindow(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, name)
}

func (s *Server) window(name string) (core.Window, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[name]
	return w, ok
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/executions", s.handleListExecutions)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.handleSubmitTask)
			r.Get("/{id}", s.handleGetTask)
			r.Post("/{id}/abort", s.handleAbortTask)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.sched.IsRunning() {
		respondError(w, reqID, http.StatusServiceUnavailable, ErrStopped, "scheduler is not running")
		return
	}
	respondOK(w, reqID, map[string]any{"running": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), toStatusView(s.sched.Stats()))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id, ok := parseTaskID(w, r, reqID)
	if !ok {
		return
	}
	t, found := s.sched.Lookup(id)
	if !found {
		respondError(w, reqID, http.StatusNotFound, ErrNotFound, fmt.Sprintf("task %s not found", id))
		return
	}
	respondOK(w, reqID, toTaskView(t))
}

func (s *Server) handleAbortTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id, ok := parseTaskID(w, r, reqID)
	if !ok {
		return
	}
	if !s.sched.Abort(id) {
		respondError(w, reqID, http.StatusNotFound, ErrNotFound, fmt.Sprintf("task %s not found", id))
		return
	}
	respondOK(w, reqID, map[string]any{"id": id, "aborted": true})
}

// submitRequest describes a demo task that sleeps for Duration per run.
type submitRequest struct {
	Name      string `json:"name"`
	Priority  *int   `json:"priority,omitempty"`
	Window    string `json:"window,omitempty"`
	Repeating bool   `json:"repeating"`
	Duration  string `json:"duration"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, ErrValidation, "invalid JSON: "+err.Error())
		return
	}

	var d time.Duration
	if req.Duration != "" {
		var err error
		if d, err = time.ParseDuration(req.Duration); err != nil || d < 0 {
			respondError(w, reqID, http.StatusBadRequest, ErrValidation, fmt.Sprintf("invalid duration %q", req.Duration))
			return
		}
	}

	opts := []core.TaskOption{}
	if req.Name != "" {
		opts = append(opts, core.WithName(req.Name))
	}
	if req.Priority != nil {
		opts = append(opts, core.WithPriority(core.Priority(*req.Priority)))
	}
	if req.Repeating {
		opts = append(opts, core.WithRepeating())
	}
	if req.Window != "" {
		win, ok := s.window(req.Window)
		if !ok {
			respondError(w, reqID, http.StatusNotFound, ErrNotFound, fmt.Sprintf("window %q not found", req.Window))
			return
		}
		opts = append(opts, core.WithWindow(win))
	}

	id, err := s.sched.Submit(core.NewFuncTask(sleepFor(d), opts...))
	switch {
	case err == nil:
	case errors.Is(err, core.ErrSchedulerStopped):
		respondError(w, reqID, http.StatusServiceUnavailable, ErrStopped, err.Error())
		return
	case errors.Is(err, core.ErrUnknownWindow):
		respondError(w, reqID, http.StatusNotFound, ErrNotFound, err.Error())
		return
	case errors.Is(err, core.ErrDuplicateTask):
		respondError(w, reqID, http.StatusConflict, ErrConflict, err.Error())
		return
	default:
		respondError(w, reqID, http.StatusInternalServerError, ErrInternal, err.Error())
		return
	}

	s.logger.Info("task submitted", "id", id, "window", req.Window, "repeating", req.Repeating)
	respondAccepted(w, reqID, map[string]any{"id": id})
}

// sleepFor returns a task body that blocks for d or until aborted.
func sleepFor(d time.Duration) func(ctx context.Context) {
	return func(ctx context.Context) {
		if d <= 0 {
			return
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	q := r.URL.Query()

	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, reqID, http.StatusBadRequest, ErrValidation, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	source := q.Get("source")
	if source == "" {
		source = "memory"
		if s.journal != nil {
			source = "journal"
		}
	}

	switch source {
	case "memory":
		respondOK(w, reqID, executionViews(s.sched.RecentExecutions(limit)))
	case "journal":
		if s.journal == nil {
			respondError(w, reqID, http.StatusNotFound, ErrNotFound, "journal is disabled")
			return
		}
		f := journal.Filter{
			InstanceID: q.Get("instance"),
			Pool:       q.Get("pool"),
			Limit:      limit,
		}
		if v := q.Get("task"); v != "" {
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				respondError(w, reqID, http.StatusBadRequest, ErrValidation, "task must be a task id")
				return
			}
			f.TaskID = core.TaskID(id)
		}
		entries, err := s.journal.ListExecutions(r.Context(), f)
		if err != nil {
			s.logger.Error("list executions", "error", err)
			respondError(w, reqID, http.StatusInternalServerError, ErrInternal, "failed to read journal")
			return
		}
		respondOK(w, reqID, journalViews(entries))
	default:
		respondError(w, reqID, http.StatusBadRequest, ErrValidation, fmt.Sprintf("unknown source %q", source))
	}
}

func parseTaskID(w http.ResponseWriter, r *http.Request, reqID string) (core.TaskID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondError(w, reqID, http.StatusBadRequest, ErrValidation, fmt.Sprintf("invalid task id %q", raw))
		return 0, false
	}
	return core.TaskID(id), true
}
