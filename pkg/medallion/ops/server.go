// Package ops serves the operational endpoints of a long-running medallion
// process and schedules its runs.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/medallion/pkg/medallion/pipeline"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

// Error is the error class of this package.
var Error = errs.Class("ops")

// Service is the part of the medallion service the endpoints drive.
type Service interface {
	Run(ctx context.Context) pipeline.Result
	Runs(ctx context.Context, limit int) ([]warehouse.Run, error)
	Health(ctx context.Context) error
}

// Server exposes /health, /metrics and /runs.
type Server struct {
	log      *zap.Logger
	svc      Service
	listener net.Listener
	server   http.Server
	running  atomic.Bool
}

// NewServer builds the router. gatherer may be nil, in which case /metrics
// serves the default registry.
func NewServer(log *zap.Logger, listener net.Listener, svc Service, gatherer prometheus.Gatherer) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	srv := &Server{log: log.Named("ops"), svc: svc, listener: listener}

	router := mux.NewRouter()
	router.HandleFunc("/health", srv.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/runs", srv.handleListRuns).Methods(http.MethodGet)
	router.HandleFunc("/runs", srv.handleTriggerRun).Methods(http.MethodPost)

	srv.server = http.Server{Handler: router}
	return srv
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// TryRun executes one run unless another started through this server is
// still going. ok is false when the run was refused.
func (s *Server) TryRun(ctx context.Context) (res pipeline.Result, ok bool) {
	if !s.running.CompareAndSwap(false, true) {
		return res, false
	}
	defer s.running.Store(false)
	return s.svc.Run(ctx), true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"healthy": true}
	if err := s.svc.Health(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body = map[string]any{"healthy": false, "error": err.Error()}
	}
	s.writeJSON(w, status, body)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.svc.Runs(r.Context(), limit)
	if err != nil {
		s.log.Error("list runs", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	res, ok := s.TryRun(context.WithoutCancel(r.Context()))
	if !ok {
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
		return
	}
	status := http.StatusOK
	if res.Status != pipeline.StatusSuccess {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, map[string]string{"run_id": res.RunID, "status": res.Status, "message": res.Message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

// Serve runs the HTTP server until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return Error.Wrap(s.server.Shutdown(context.Background()))
	})
	group.Go(func() error {
		defer cancel()
		err := s.server.Serve(s.listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}
