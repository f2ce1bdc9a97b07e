package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/copyleftdev/lahc/internal/config"
	"github.com/copyleftdev/lahc/internal/logging"
	"github.com/copyleftdev/lahc/internal/metrics"
	"github.com/copyleftdev/lahc/internal/optimization"
	"github.com/copyleftdev/lahc/internal/problems"
)

// Logger defines the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32004
)

var (
	errNotFound      = errors.New("optimization not found")
	errInvalidParams = errors.New("invalid params")
	errFinished      = errors.New("optimization already finished")
)

// OptimizationState tracks one run. All fields are guarded by the server's
// optimizations lock.
type OptimizationState struct {
	ID          string
	Status      string
	Spec        problems.Spec
	Job         *problems.Job
	Outcome     *problems.Outcome
	Err         error
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	CancelFunc  context.CancelFunc

	metrics *metrics.Run
}

func (s *OptimizationState) finished() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StartResponse is returned when a run is accepted.
type StartResponse struct {
	OptimizationID string `json:"optimization_id"`
	Status         string `json:"status"`
}

// StatusResponse reports the progress of a run.
type StatusResponse struct {
	OptimizationID string                    `json:"optimization_id"`
	Status         string                    `json:"status"`
	Problem        string                    `json:"problem"`
	Progress       float64                   `json:"progress"`
	Iterations     int                       `json:"iterations"`
	StepLimit      int                       `json:"step_limit"`
	BestCost       *float64                  `json:"best_cost,omitempty"`
	Best           any                       `json:"best,omitempty"`
	History        []optimization.Evaluation `json:"history,omitempty"`
	Error          string                    `json:"error,omitempty"`
	StartTime      string                    `json:"start_time"`
	EndTime        string                    `json:"end_time,omitempty"`
	LastUpdate     string                    `json:"last_update"`
}

type idParams struct {
	OptimizationID string `json:"optimization_id"`
}

// Server implements the HTTP and JSON-RPC API for LAHC runs.
// Runs execute in the background; at most Optimization.WorkerCount of them
// step at the same time and the rest wait as pending.
type Server struct {
	cfg      *config.Config
	logger   Logger
	recorder *metrics.Recorder
	workers  *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	optimizations   map[string]*OptimizationState
	optimizationsMu sync.RWMutex
}

// NewServer creates a new server. recorder may be nil.
func NewServer(cfg *config.Config, logger Logger, recorder *metrics.Recorder) *Server {
	workers := cfg.Optimization.WorkerCount
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:           cfg,
		logger:        logger,
		recorder:      recorder,
		workers:       semaphore.NewWeighted(int64(workers)),
		ctx:           ctx,
		cancel:        cancel,
		optimizations: make(map[string]*OptimizationState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      interface{}     `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var (
		result interface{}
		err    error
	)
	switch request.Method {
	case "optimization.start":
		var spec problems.Spec
		if err = decodeParams(request.Params, &spec); err == nil {
			result, err = s.startOptimization(spec)
		}
	case "optimization.status":
		var p idParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.optimizationStatus(p.OptimizationID)
		}
	case "optimization.cancel":
		var p idParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.cancelOptimization(p.OptimizationID)
		}
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, rpcCode(err), err.Error(), request.ID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParams accepts either a params object or a positional array whose
// first element is the object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%w: missing required parameters", errInvalidParams)
	}
	if raw[0] == '[' {
		var positional []json.RawMessage
		if err := json.Unmarshal(raw, &positional); err != nil {
			return fmt.Errorf("%w: %v", errInvalidParams, err)
		}
		if len(positional) == 0 {
			return fmt.Errorf("%w: missing required parameters", errInvalidParams)
		}
		raw = positional[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: expected object: %v", errInvalidParams, err)
	}
	return nil
}

func rpcCode(err error) int {
	switch {
	case errors.Is(err, errInvalidParams), errors.Is(err, optimization.ErrInvalidConfig):
		return codeInvalidParams
	case errors.Is(err, errNotFound):
		return codeNotFound
	default:
		return codeServerError
	}
}

// startOptimization builds the run described by spec and schedules it.
// Spec errors are reported synchronously.
func (s *Server) startOptimization(spec problems.Spec) (*StartResponse, error) {
	id := "opt_" + uuid.NewString()
	logger := s.logger.WithFields(map[string]interface{}{"optimization_id": id})

	var run *metrics.Run
	opts := problems.JobOptions{
		Defaults: s.cfg.RunDefaults(),
		Progress: optimization.DiscardProgress,
		Logger:   logger.Zap(),
	}
	if s.recorder != nil {
		run = s.recorder.Run(id)
		opts.Progress = run
		opts.Observer = run
	}

	job, err := spec.NewJob(opts)
	if err != nil {
		if run != nil {
			run.Forget()
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	now := time.Now()
	state := &OptimizationState{
		ID:          id,
		Status:      StatusPending,
		Spec:        job.Spec(),
		Job:         job,
		StartTime:   now,
		LastUpdated: now,
		CancelFunc:  cancel,
		metrics:     run,
	}

	s.optimizationsMu.Lock()
	s.optimizations[id] = state
	s.optimizationsMu.Unlock()

	logger.Info("Optimization scheduled", map[string]interface{}{
		"problem":        state.Spec.Problem,
		"size":           state.Spec.Size,
		"history_length": state.Spec.HistoryLength,
		"step_limit":     state.Spec.StepLimit,
		"seed":           state.Spec.Seed,
	})

	s.wg.Add(1)
	go s.runOptimization(ctx, state)

	return &StartResponse{OptimizationID: id, Status: StatusPending}, nil
}

// runOptimization waits for a worker slot and executes the run.
func (s *Server) runOptimization(ctx context.Context, state *OptimizationState) {
	defer s.wg.Done()
	defer state.CancelFunc()

	if err := s.workers.Acquire(ctx, 1); err != nil {
		s.finish(state, nil, nil, false)
		return
	}
	defer s.workers.Release(1)

	s.optimizationsMu.Lock()
	if state.finished() {
		s.optimizationsMu.Unlock()
		return
	}
	state.Status = StatusRunning
	state.LastUpdated = time.Now()
	s.optimizationsMu.Unlock()

	if state.metrics != nil {
		state.metrics.Started(state.Job.BestCost())
	}
	outcome, err := state.Job.Run(ctx)
	s.finish(state, outcome, err, true)
}

// finish records the outcome of a run. A run cancelled through the API
// keeps its cancelled status.
func (s *Server) finish(state *OptimizationState, outcome *problems.Outcome, err error, started bool) {
	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state.Outcome = outcome
	state.Err = err
	now := time.Now()
	state.LastUpdated = now
	if state.EndTime == nil {
		state.EndTime = &now
	}

	switch {
	case state.Status == StatusCancelled:
	case err != nil:
		state.Status = StatusFailed
	case outcome == nil || outcome.Cancelled:
		state.Status = StatusCancelled
	default:
		state.Status = StatusCompleted
	}
	if started && state.metrics != nil {
		state.metrics.Finished(state.Status)
	}

	fields := map[string]interface{}{
		"optimization_id": state.ID,
		"status":          state.Status,
	}
	if outcome != nil {
		fields["best_cost"] = outcome.BestCost
		fields["iterations"] = outcome.Iterations
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger.Error("Optimization failed", fields)
	} else {
		s.logger.Info("Optimization finished", fields)
	}
}

// optimizationStatus reports the current state of a run.
func (s *Server) optimizationStatus(id string) (*StatusResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: optimization_id is required", errInvalidParams)
	}

	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()

	state, ok := s.optimizations[id]
	if !ok {
		return nil, errNotFound
	}

	resp := &StatusResponse{
		OptimizationID: state.ID,
		Status:         state.Status,
		Problem:        state.Spec.Problem,
		StepLimit:      state.Spec.StepLimit,
		StartTime:      state.StartTime.Format(time.RFC3339),
		LastUpdate:     state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		resp.EndTime = state.EndTime.Format(time.RFC3339)
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}

	if out := state.Outcome; out != nil {
		cost := out.BestCost
		resp.BestCost = &cost
		resp.Best = out.Best
		resp.Iterations = out.Iterations
		resp.History = out.History
	} else if state.Status == StatusRunning {
		cost := state.Job.BestCost()
		resp.BestCost = &cost
		resp.Iterations = state.Job.Iterations()
		resp.History = state.Job.History()
	}

	switch {
	case state.Status == StatusCompleted:
		resp.Progress = 1
	case resp.StepLimit > 0:
		resp.Progress = float64(resp.Iterations) / float64(resp.StepLimit)
	}
	return resp, nil
}

// cancelOptimization stops a pending or running run.
func (s *Server) cancelOptimization(id string) (map[string]string, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: optimization_id is required", errInvalidParams)
	}

	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state, ok := s.optimizations[id]
	if !ok {
		return nil, errNotFound
	}
	if state.finished() {
		return nil, fmt.Errorf("%w: status is %s", errFinished, state.Status)
	}

	state.Job.Stop()
	state.CancelFunc()
	state.Status = StatusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})
	return map[string]string{"status": "cancellation requested"}, nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("Request error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

// Close cancels every run and waits for the background goroutines to exit.
func (s *Server) Close() error {
	s.cancel()

	s.optimizationsMu.Lock()
	for _, opt := range s.optimizations {
		opt.CancelFunc()
	}
	s.optimizationsMu.Unlock()

	s.wg.Wait()

	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()
	for _, opt := range s.optimizations {
		if opt.metrics != nil {
			opt.metrics.Forget()
		}
	}
	return nil
}

// handleOptimize handles POST /api/v1/optimize. The body is a run spec.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var spec problems.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("Invalid request body: %v", err),
		})
		return
	}

	result, err := s.startOptimization(spec)
	if err != nil {
		writeJSON(w, httpStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.optimizationStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, httpStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/optimization/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	result, err := s.cancelOptimization(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, httpStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, errFinished):
		return http.StatusConflict
	case errors.Is(err, errInvalidParams), errors.Is(err, optimization.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
