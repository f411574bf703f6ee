package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"librarian/internal/api"
	"librarian/internal/config"
	"librarian/internal/ledger"
	"librarian/internal/logging"
	"librarian/internal/metrics"
	"librarian/internal/services"
)

// maxBodyBytes bounds inbound callback payloads.
const maxBodyBytes = 64 << 10

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	limiter := newRateLimiter(cfg.API.RateLimit, cfg.API.RateBurst)
	token := strings.TrimSpace(cfg.Paths.APIToken)
	route := func(name string, h http.HandlerFunc) http.HandlerFunc {
		return instrument(name, limiter.wrap(authMiddleware(token, h)))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", route("status", srv.handleStatus))
	mux.HandleFunc("/api/requests", route("requests", srv.handleRequests))
	mux.HandleFunc("/api/requests/", route("request", srv.handleRequest))
	mux.HandleFunc("/api/approvals", route("approvals", srv.handleApprovals))
	mux.HandleFunc("/api/jobs", route("jobs", srv.handleJobs))
	mux.Handle("/metrics", route("metrics", metrics.Handler().ServeHTTP))
	srv.handler = mux
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.api_bind"),
				logging.String(logging.FieldImpact, "chat callbacks are not received"),
			)
		}
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()).View())
}

// View renders the status for API and IPC consumers.
func (status Status) View() api.DaemonStatus {
	return api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		DatabasePath:  status.DatabasePath,
		LockFilePath:  status.LockFilePath,
		LogPath:       status.LogPath,
		RequestCounts: api.RequestCounts(status.Requests),
		Monitor:       api.FromMonitorStatus(status.Monitor),
		Target:        status.Target,
	}
}

func (s *apiServer) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var states []ledger.State
		for _, value := range r.URL.Query()["state"] {
			state, ok := ledger.ParseState(value)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", value))
				return
			}
			states = append(states, state)
		}
		reqs, err := s.daemon.ListRequests(r.Context(), states)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.RequestListResponse{Requests: api.FromRequests(reqs)})
	case http.MethodPost:
		var payload api.CreateRequestPayload
		if !s.decode(w, r, &payload) {
			return
		}
		req, err := s.daemon.CreateRequest(r.Context(), payload)
		if err != nil && req == nil {
			s.writeFailure(w, err)
			return
		}
		// A prompt that failed to render leaves the request created; it is
		// prompted again on restart or expired by the sweep.
		status := http.StatusCreated
		if err != nil {
			status = http.StatusAccepted
		}
		s.writeJSON(w, status, api.FromRequest(req))
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/requests/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}
	detail, err := s.daemon.DescribeRequest(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromDetail(detail))
}

func (s *apiServer) handleApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload api.ApprovalPayload
	if !s.decode(w, r, &payload) {
		return
	}
	decision, err := s.daemon.Decide(r.Context(), payload)
	if err != nil && !ledger.IsBenign(err) {
		s.writeFailure(w, err)
		return
	}
	resp := api.ApprovalResponse{
		Request:        api.FromRequest(decision.Request),
		AlreadyDecided: decision.AlreadyDecided,
		Queued:         decision.Queued,
	}
	if decision.SubmitErr != nil {
		resp.Error = decision.SubmitErr.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []ledger.JobStatus
	for _, value := range r.URL.Query()["status"] {
		status, ok := ledger.ParseJobStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	jobs, err := s.daemon.ListJobs(r.Context(), statuses)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

// statusFor maps a failure onto an HTTP status code by its classification.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrDuplicateRequest), errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	}
	switch services.Classify(err) {
	case services.KindOperator:
		return http.StatusBadRequest
	case services.KindStalled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := api.ErrorResponse{Error: err.Error(), Kind: string(services.Classify(err))}
	var verr *api.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(s.logger, "api request failed", "api_request_failed",
			logging.Error(err),
			logging.Int("status", status),
		)
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		metrics.RecordAPIRequest(route, strconv.Itoa(rec.code))
	}
}
