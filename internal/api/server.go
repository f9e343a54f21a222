package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"indexq/internal/domain"
	"indexq/internal/ports"
	"indexq/internal/toggles"
	"indexq/internal/usecase"
	"indexq/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type TaskCreator interface {
	CreateTasks(ctx context.Context, reqs []domain.CreationRequest, opts ...usecase.CreateOption) (int, error)
}

type WorkerState interface {
	usecase.Trigger
	Running() bool
	ExecutionID() string
	Restarts() int
}

type Deps struct {
	Creator  TaskCreator
	Worker   WorkerState
	Store    ports.TaskStore
	Topology ports.Topology
	Toggles  *toggles.Set
	Gatherer prometheus.Gatherer
	// Ping reports whether the task database is reachable.
	Ping func(ctx context.Context) error
}

func FromNode(n *worker.Node) Deps {
	return Deps{
		Creator:  n.Creator,
		Worker:   n.Runner,
		Store:    n.Store,
		Topology: n.Topology,
		Toggles:  n.Toggles,
		Gatherer: n.Registry,
		Ping:     n.Store.Ping,
	}
}

type createReq struct {
	Requests   []domain.CreationRequest `json:"requests"`
	RunIndexer *bool                    `json:"run_indexer"`
}

type Server struct {
	router *chi.Mux
	deps   Deps
}

func NewServer(d Deps) *Server {
	s := &Server{router: chi.NewRouter(), deps: d}

	r := s.router
	r.Use(togglesHandler)
	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/status", s.status)
	r.Post("/run", s.run)
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", s.createTasks)
		r.Get("/", s.listTasks)
		r.Get("/{id}", s.getTask)
	})
	return s
}

// Handler returns the router wrapped in the standard middleware chain.
func (s *Server) Handler() http.Handler {
	return chainMiddleware(
		s.router,
		requestIDHandler,
		realIPHandler,
		loggerHandler(func(w http.ResponseWriter, r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
		}),
		recoverHandler,
		corsHandler,
	)
}

func (s *Server) createTasks(w http.ResponseWriter, r *http.Request) {
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var opts []usecase.CreateOption
	if req.RunIndexer != nil {
		opts = append(opts, usecase.WithRunIndexer(*req.RunIndexer))
	}

	n, err := s.deps.Creator.CreateTasks(r.Context(), req.Requests, opts...)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTask) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		log.Ctx(r.Context()).Error().Err(err).Msg("create tasks failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"created": n})
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Worker.RunAsync(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"running":      s.deps.Worker.Running(),
		"execution_id": s.deps.Worker.ExecutionID(),
	})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ports.ListFilter{
		Status:     domain.TaskStatus(q.Get("status")),
		ServerName: q.Get("server"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		f.Limit = limit
	}

	tasks, err := s.deps.Store.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if tasks == nil {
		tasks = []domain.TaskRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid task id"))
		return
	}
	t, err := s.deps.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	t := s.deps.Toggles.Effective(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"node":         s.deps.Topology.NodeName(),
		"nodes":        s.deps.Topology.EnabledNodeNames(),
		"partitioned":  s.deps.Topology.IsPartitioned(),
		"running":      s.deps.Worker.Running(),
		"execution_id": s.deps.Worker.ExecutionID(),
		"restarts":     s.deps.Worker.Restarts(),
		"toggles": map[string]bool{
			"indexing":            t.Indexing,
			"task_creation":       t.TaskCreation,
			"search":              t.Search,
			"process_immediately": t.ProcessImmediately,
		},
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// Run serves on port until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)

	httpServer := http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info().Msg("Server is shutting down...")

		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		close(done)
	}()

	log.Info().Msgf("server serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}

	<-done
	log.Info().Msg("Server stopped")
	return nil
}
