package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cuemby/stratum/pkg/config"
	"github.com/cuemby/stratum/pkg/log"
	"github.com/cuemby/stratum/pkg/metrics"
	"github.com/cuemby/stratum/pkg/scheduler"
	"github.com/cuemby/stratum/pkg/storage"
	"github.com/rs/zerolog"
)

// Server is Stratum's HTTP surface. It never executes a task itself — every
// mutating handler registers a task and wakes the scheduler, mirroring the
// teacher's health server's separation between the HTTP goroutine and the
// component actually doing the work.
type Server struct {
	store  storage.Store
	sched  *scheduler.Scheduler
	opts   config.Options
	logger zerolog.Logger

	mux *http.ServeMux
	srv *http.Server
}

// NewServer wires a Server to its collaborators and registers every route.
func NewServer(store storage.Store, sched *scheduler.Scheduler, opts config.Options, addr string) *Server {
	s := &Server{
		store:  store,
		sched:  sched,
		opts:   opts,
		logger: log.WithComponent("api"),
		mux:    http.NewServeMux(),
	}
	s.routes()
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.instrument(s.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /indexes", s.handleCreateIndex)
	s.mux.HandleFunc("PATCH /indexes/{indexUid}", s.handleUpdateIndex)
	s.mux.HandleFunc("DELETE /indexes/{indexUid}", s.handleDeleteIndex)
	s.mux.HandleFunc("POST /indexes/{indexUid}/compact", s.handleCompactIndex)
	s.mux.HandleFunc("PATCH /indexes/{indexUid}/settings", s.handleUpdateSettings)
	s.mux.HandleFunc("DELETE /indexes/{indexUid}/settings", s.handleResetSettings)
	s.mux.HandleFunc("POST /indexes/{indexUid}/documents", s.handleAddDocuments)
	s.mux.HandleFunc("POST /indexes/{indexUid}/documents/delete-batch", s.handleDeleteDocuments)
	s.mux.HandleFunc("POST /indexes/{indexUid}/documents/delete", s.handleDeleteDocumentsByFilter)
	s.mux.HandleFunc("DELETE /indexes/{indexUid}/documents", s.handleClearDocuments)
	s.mux.HandleFunc("POST /swap-indexes", s.handleSwapIndexes)

	s.mux.HandleFunc("POST /tasks/cancel", s.handleCancelTasks)
	s.mux.HandleFunc("POST /tasks/delete", s.handleDeleteTasks)
	s.mux.HandleFunc("GET /tasks", s.handleListTasks)
	s.mux.HandleFunc("GET /tasks/{uid}", s.handleGetTask)

	s.mux.HandleFunc("GET /batches", s.handleListBatches)
	s.mux.HandleFunc("GET /batches/{uid}", s.handleGetBatch)

	s.mux.HandleFunc("GET /stats", s.handleStats)

	s.mux.HandleFunc("POST /dumps", s.handleCreateDump)
	s.mux.HandleFunc("POST /snapshots", s.handleCreateSnapshot)

	s.mux.HandleFunc("GET /health", metrics.HealthHandler())
	s.mux.HandleFunc("GET /ready", metrics.ReadyHandler())
	s.mux.HandleFunc("GET /live", metrics.LivenessHandler())
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// instrument records every request's method and outcome status, the HTTP
// analogue of the teacher's interceptor.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, http.StatusText(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Start begins serving in its own goroutine. Errors other than a clean
// Shutdown are logged rather than returned, since the caller has already
// moved on to waiting for a termination signal.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("api server stopped unexpectedly")
		}
	}()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
