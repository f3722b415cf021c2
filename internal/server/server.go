// Package server exposes covflow over HTTP: it accepts repository event
// deliveries, matches them against loaded workflow triggers and starts runs
// asynchronously.
package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/event"
	"github.com/covflow/covflow/internal/observability"
	"github.com/covflow/covflow/internal/run"
	"github.com/covflow/covflow/internal/trigger"
	"github.com/covflow/covflow/internal/workflow"
)

// maxEventBody bounds webhook payload size. GitHub caps deliveries at 25MB.
const maxEventBody = 25 << 20

// Server is the covflow webhook server.
type Server struct {
	cfg          *Config
	logger       *slog.Logger
	workflows    *workflow.Set
	orchestrator *run.Orchestrator

	ready    atomic.Bool
	runWG    sync.WaitGroup
	runSlots chan struct{}
}

// New wires a Server. The orchestrator executes runs started by matching
// event deliveries.
func New(cfg *Config, logger *slog.Logger, set *workflow.Set, orchestrator *run.Orchestrator) *Server {
	return &Server{
		cfg:          cfg,
		logger:       logger,
		workflows:    set,
		orchestrator: orchestrator,
		runSlots:     make(chan struct{}, cfg.MaxConcurrentRuns),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware, metricsMiddleware)

	r.HandleFunc("/api/v1/events", s.handleEvent).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	return r
}

// ListenAndServe runs the server until ctx is canceled, then drains: the
// listener stops accepting, in-flight runs get the configured grace period
// to finish, and stragglers are abandoned.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 Webhook server listening", "addr", s.cfg.Listen)
		s.ready.Store(true)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.ready.Store(false)
	s.logger.Info("Shutting down, draining in-flight runs.", "grace", s.cfg.ShutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("All runs drained.")
	case <-shutdownCtx.Done():
		s.logger.Warn("Shutdown grace expired with runs still in flight.")
	}
	return nil
}

// handleEvent accepts a repository event delivery and starts a run for
// every workflow whose trigger matches. Responds 202 with the run IDs.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())

	kind := r.Header.Get("X-Event-Type")
	if kind == "" {
		observability.EventsReceivedTotal.WithLabelValues("unknown", "rejected").Inc()
		writeJSONError(w, http.StatusBadRequest, "missing X-Event-Type header")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody+1))
	if err != nil {
		observability.EventsReceivedTotal.WithLabelValues(kind, "rejected").Inc()
		writeJSONError(w, http.StatusBadRequest, "reading request body")
		return
	}
	if len(payload) > maxEventBody {
		observability.EventsReceivedTotal.WithLabelValues(kind, "rejected").Inc()
		writeJSONError(w, http.StatusRequestEntityTooLarge, "event payload exceeds the size limit")
		return
	}

	if s.cfg.WebhookSecret != "" {
		if err := verifySignature(s.cfg.WebhookSecret, payload, r.Header.Get("X-Hub-Signature-256")); err != nil {
			logger.Warn("Rejected event with bad signature.", "error", err)
			observability.EventsReceivedTotal.WithLabelValues(kind, "rejected").Inc()
			writeJSONError(w, http.StatusForbidden, "signature verification failed")
			return
		}
	}

	ev, err := event.Parse(event.Kind(kind), payload)
	if err != nil {
		observability.EventsReceivedTotal.WithLabelValues(kind, "rejected").Inc()
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	matched := trigger.Match(s.workflows, ev)
	if len(matched) == 0 {
		observability.EventsReceivedTotal.WithLabelValues(kind, "ignored").Inc()
		writeJSON(w, http.StatusAccepted, map[string]any{"runs": []string{}})
		return
	}
	observability.EventsReceivedTotal.WithLabelValues(kind, "matched").Inc()

	runIDs := make([]string, 0, len(matched))
	for _, wf := range matched {
		rn := s.orchestrator.NewRun(wf, ev)
		runIDs = append(runIDs, rn.ID)
		logger.Info("🚀 Run accepted", "run_id", rn.ID, "workflow", wf.Name, "event", kind)
		s.startRun(rn)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"runs": runIDs})
}

// startRun executes a run on its own goroutine, bounded by the concurrency
// slots. Runs outlive their originating request.
func (s *Server) startRun(r *run.Run) {
	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		s.runSlots <- struct{}{}
		defer func() { <-s.runSlots }()

		ctx := ctxlog.WithLogger(context.Background(), s.logger)
		if err := s.orchestrator.Execute(ctx, r); err != nil {
			s.logger.Error("Run finished with error.", "run_id", r.ID, "error", err)
		}
	}()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports 503 until the listener is up and again once a
// shutdown begins, so load balancers stop routing before the drain.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// verifySignature checks a GitHub-style HMAC SHA-256 payload signature.
func verifySignature(secret string, payload []byte, header string) error {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return errors.New("missing or malformed X-Hub-Signature-256 header")
	}
	got, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	want := mac.Sum(nil)

	if subtle.ConstantTimeCompare(got, want) != 1 {
		return errors.New("signature mismatch")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// loggingMiddleware attaches the server logger to the request context and
// logs each request on completion.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := ctxlog.WithLogger(r.Context(), s.logger)
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r.WithContext(ctx))

		s.logger.Debug("Handled request.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.statusCode,
			"duration", time.Since(start))
	})
}

// metricsMiddleware records per-route request counters and latencies.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		statusClass := fmt.Sprintf("%dxx", recorder.statusCode/100)
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusClass).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
