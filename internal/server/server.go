// ABOUTME: HTTP surface the orchestrator polls for reconciliation status
// ABOUTME: Runs the reconcile loop and serves the latest outcome plus a manual trigger

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/synapse-warden/internal/mjolnir"
)

// Reconciler defines what the server needs from the core.
type Reconciler interface {
	CollectStatus(ctx context.Context) (mjolnir.Status, error)
}

// Snapshot is the externally visible result of the most recent pass.
type Snapshot struct {
	PassID    string    `json:"pass_id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Server owns the reconcile loop and the polled status endpoint.
// Passes are serialized: the ticker and the manual trigger both feed
// the single loop goroutine.
type Server struct {
	reconciler Reconciler
	verifier   TokenVerifier
	interval   time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	latest Snapshot

	trigger chan struct{}
}

// New creates a server around the given reconciler.
func New(reconciler Reconciler, verifier TokenVerifier, interval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		reconciler: reconciler,
		verifier:   verifier,
		interval:   interval,
		logger:     logger.With("component", "server"),
		trigger:    make(chan struct{}, 1),
	}
}

// RunLoop drives reconciliation until the context is cancelled. An
// immediate pass runs at startup; afterwards passes run on every tick
// and on every manual trigger.
func (s *Server) RunLoop(ctx context.Context) {
	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPass(ctx)
		case <-s.trigger:
			s.runPass(ctx)
		}
	}
}

// runPass executes one reconciliation pass and records its outcome.
func (s *Server) runPass(ctx context.Context) {
	passID := uuid.New().String()
	status, err := s.reconciler.CollectStatus(ctx)

	snapshot := Snapshot{
		PassID:    passID,
		Kind:      status.Kind.String(),
		Detail:    status.Detail,
		CheckedAt: time.Now().UTC(),
	}
	if err != nil {
		// A failure mid-provisioning is an incident, not routine status
		s.logger.Error("reconciliation pass failed", "pass_id", passID, "error", err)
		snapshot.Error = err.Error()
	} else {
		s.logger.Info("reconciliation pass complete", "pass_id", passID, "status", snapshot.Kind, "detail", snapshot.Detail)
	}

	s.mu.Lock()
	s.latest = snapshot
	s.mu.Unlock()
}

// Trigger requests an extra pass. Non-blocking: if a trigger is
// already pending the request coalesces with it.
func (s *Server) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Latest returns the most recent snapshot.
func (s *Server) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Handler returns the HTTP handler for the status surface. All routes
// require a bearer JWT.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/reconcile", s.handleReconcile)
	return authMiddleware(s.verifier, mux)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Latest()); err != nil {
		s.logger.Error("encoding status response", "error", err)
	}
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	s.Trigger()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"triggered":true}`))
}
