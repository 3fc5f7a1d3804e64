package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/copyleftdev/optplay/internal/config"
	apperrors "github.com/copyleftdev/optplay/internal/errors"
	"github.com/copyleftdev/optplay/internal/logging"
	"github.com/copyleftdev/optplay/internal/optimization"
	"github.com/copyleftdev/optplay/internal/playground"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

var (
	// ErrNotFound is returned for unknown run IDs.
	ErrNotFound = apperrors.New("optimization not found")
	// ErrFinished is returned when cancelling a run that already ended.
	ErrFinished = apperrors.New("optimization already finished")
)

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// OptimizationState tracks one asynchronous run. Fields other than ID,
// Recorder and the plan are guarded by Server.optimizationsMu.
type OptimizationState struct {
	ID          string
	Status      string
	Plan        *playground.Plan
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	// Recorder sees every iteration as it happens, so status requests can
	// report progress before the run ends.
	Recorder   *optimization.Recorder
	Report     *playground.Report
	Err        error
	CancelFunc context.CancelFunc
}

func (s *OptimizationState) terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Server implements the HTTP and JSON-RPC API of the playground. Runs are
// executed asynchronously, at most cfg.Optimization.WorkerCount at a time.
type Server struct {
	cfg    *config.Config
	logger Logger
	runner *playground.Runner

	optimizations   map[string]*OptimizationState
	optimizationsMu sync.RWMutex

	workers chan struct{}
	wg      sync.WaitGroup
}

// NewServer creates a new server instance with the given config, logger and
// runner.
func NewServer(cfg *config.Config, logger Logger, runner *playground.Runner) *Server {
	workers := cfg.Optimization.WorkerCount
	if workers < 1 {
		workers = 1
	}
	return &Server{
		cfg:           cfg,
		logger:        logger,
		runner:        runner,
		optimizations: make(map[string]*OptimizationState),
		workers:       make(chan struct{}, workers),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/surface", s.handleSurface)
		r.Get("/functions", s.handleFunctions)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// StartOptimization validates req synchronously and launches the run in
// the background. Invalid requests fail here and leave no state behind.
func (s *Server) StartOptimization(req playground.Request) (*OptimizationState, error) {
	plan, err := s.runner.Prepare(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	state := &OptimizationState{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Plan:        plan,
		StartTime:   now,
		LastUpdated: now,
		Recorder:    optimization.NewRecorder(),
		CancelFunc:  cancel,
	}

	s.optimizationsMu.Lock()
	s.evictLocked(now)
	s.optimizations[state.ID] = state
	s.optimizationsMu.Unlock()

	s.logger.Info("Optimization started", map[string]interface{}{
		"optimization_id": state.ID,
		"method":          plan.Method,
		"line_search":     plan.LineSearch,
		"objective":       plan.Objective,
	})

	s.wg.Add(1)
	go s.runOptimization(ctx, state)

	return state, nil
}

// evictLocked drops finished runs older than the result TTL, then the
// oldest finished runs until there is room for one more. Pending and
// running runs are never evicted.
func (s *Server) evictLocked(now time.Time) {
	ttl := s.cfg.Optimization.ResultTTL
	limit := s.cfg.Optimization.MaxRetainedRuns

	var finished []*OptimizationState
	for id, state := range s.optimizations {
		if !state.terminal() || state.EndTime == nil {
			continue
		}
		if ttl > 0 && now.Sub(*state.EndTime) > ttl {
			delete(s.optimizations, id)
			continue
		}
		finished = append(finished, state)
	}

	if limit <= 0 || len(s.optimizations) < limit {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].EndTime.Before(*finished[j].EndTime)
	})
	evicted := 0
	for _, state := range finished {
		if len(s.optimizations) < limit {
			break
		}
		delete(s.optimizations, state.ID)
		evicted++
	}
	s.logger.Debug("Evicted finished optimizations", map[string]interface{}{
		"evicted":  evicted,
		"retained": len(s.optimizations),
	})
}

// runOptimization executes the run once a worker slot is free.
func (s *Server) runOptimization(ctx context.Context, state *OptimizationState) {
	defer s.wg.Done()
	defer state.CancelFunc()

	select {
	case s.workers <- struct{}{}:
		defer func() { <-s.workers }()
	case <-ctx.Done():
		s.finish(state, nil, optimization.WrapError(ctx.Err(), optimization.KindCancelled, "cancelled while queued"))
		return
	}

	if !s.transition(state, StatusRunning) {
		return
	}

	var (
		report *playground.Report
		err    error
	)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				perr := apperrors.FromPanic(rec).WithComponent("server").WithOperation("runOptimization")
				s.logger.Error("Optimization panicked", map[string]interface{}{
					"optimization_id": state.ID,
					"error":           perr.Error(),
					"stack":           perr.StackTrace(),
				})
				err = perr
			}
		}()
		report, err = s.runner.Run(ctx, state.Plan, state.Recorder)
	}()

	s.finish(state, report, err)
}

// transition moves a pending run to status unless it was cancelled.
func (s *Server) transition(state *OptimizationState, status string) bool {
	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()
	if state.terminal() {
		return false
	}
	state.Status = status
	state.LastUpdated = time.Now()
	return true
}

func (s *Server) finish(state *OptimizationState, report *playground.Report, err error) {
	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	now := time.Now()
	state.LastUpdated = now
	if state.Status == StatusCancelled {
		// Cancel already recorded the outcome.
		return
	}
	state.EndTime = &now

	switch {
	case err == nil:
		state.Status = StatusCompleted
		state.Report = report
		s.logger.Info("Optimization completed", map[string]interface{}{
			"optimization_id": state.ID,
			"status":          string(report.Status),
			"iterations":      report.Iterations,
			"value":           report.Value,
		})
	case optimization.IsKind(err, optimization.KindCancelled) && !apperrors.Is(err, context.DeadlineExceeded):
		state.Status = StatusCancelled
		state.Err = err
	default:
		state.Status = StatusFailed
		state.Err = err
		s.logger.Error("Optimization failed", map[string]interface{}{
			"optimization_id": state.ID,
			"error":           err.Error(),
		})
	}
}

// OptimizationStatus returns a snapshot of the run's state for clients.
func (s *Server) OptimizationStatus(id string) (map[string]interface{}, error) {
	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()

	state, exists := s.optimizations[id]
	if !exists {
		return nil, apperrors.Wrapf(ErrNotFound, "optimization %q", id)
	}

	response := map[string]interface{}{
		"optimization_id": state.ID,
		"status":          state.Status,
		"method":          state.Plan.Method,
		"line_search":     state.Plan.LineSearch,
		"objective":       state.Plan.Objective,
		"variables":       state.Plan.Variables,
		"start_time":      state.StartTime.Format(time.RFC3339),
		"last_update":     state.LastUpdated.Format(time.RFC3339),
		"iterations":      state.Recorder.Len(),
	}
	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if last, ok := state.Recorder.Last(); ok {
		response["current"] = last
	}
	if state.Report != nil {
		response["result"] = state.Report
	}
	if state.Err != nil {
		response["error"] = errorBody(state.Err)
	}
	return response, nil
}

// CancelOptimization stops a pending or running run.
func (s *Server) CancelOptimization(id string) error {
	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state, exists := s.optimizations[id]
	if !exists {
		return apperrors.Wrapf(ErrNotFound, "optimization %q", id)
	}
	if state.terminal() {
		return apperrors.Wrapf(ErrFinished, "optimization %q is %s", id, state.Status)
	}

	state.CancelFunc()
	now := time.Now()
	state.Status = StatusCancelled
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

// Close cancels all runs and waits for their goroutines to return.
func (s *Server) Close() error {
	s.optimizationsMu.Lock()
	for _, opt := range s.optimizations {
		if opt.CancelFunc != nil {
			opt.CancelFunc()
		}
	}
	s.optimizationsMu.Unlock()

	s.wg.Wait()
	return nil
}

// httpStatus maps an error to the HTTP status reported to clients.
func httpStatus(err error) int {
	switch {
	case apperrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case apperrors.Is(err, ErrFinished):
		return http.StatusConflict
	}
	switch optimization.KindOf(err) {
	case optimization.KindParse, optimization.KindFormat, optimization.KindConfig:
		return http.StatusBadRequest
	case optimization.KindEvaluation, optimization.KindNumericDegeneracy:
		return http.StatusUnprocessableEntity
	case optimization.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) map[string]interface{} {
	body := map[string]interface{}{"message": err.Error()}
	if kind := optimization.KindOf(err); kind != optimization.KindUnknown {
		body["kind"] = string(kind)
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request error", map[string]interface{}{"error": err.Error()})
	}
	writeJSON(w, status, map[string]interface{}{"error": errorBody(err)})
}
