package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"cognivoice/internal/config"
	"cognivoice/internal/logging"
	"cognivoice/internal/progress"
	"cognivoice/internal/sse"
)

const maxUploadBytes = 64 << 20

// Server exposes the worker's HTTP surface: job submission and per-job
// progress streams.
type Server struct {
	bind         string
	logger       *slog.Logger
	orchestrator *Orchestrator
	bus          *progress.Bus

	listener net.Listener
	server   *http.Server
}

// NewServer builds the worker HTTP server.
func NewServer(cfg *config.Config, orchestrator *Orchestrator, bus *progress.Bus, logger *slog.Logger) (*Server, error) {
	if cfg == nil || orchestrator == nil || bus == nil {
		return nil, errors.New("config, orchestrator, and bus required")
	}
	bind := strings.TrimSpace(cfg.Paths.WorkerBind)
	if bind == "" {
		return nil, errors.New("worker bind address required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	srv := &Server{
		bind:         bind,
		logger:       logger.With(logging.String(logging.FieldComponent, "worker-server")),
		orchestrator: orchestrator,
		bus:          bus,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", srv.handleSubmit)
	mux.HandleFunc("/jobs/", srv.handleJob)
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Start begins serving and arranges shutdown when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("worker listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("worker server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("worker listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down immediately.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleSubmit accepts a multipart upload and returns 202 as soon as the job
// is on scratch storage. The submission response never carries the outcome.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart payload")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "audio file required")
		return
	}
	defer file.Close()

	ownerID := r.FormValue("owner_id")
	if strings.TrimSpace(ownerID) == "" {
		s.writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}

	job, err := s.orchestrator.Submit(r.FormValue("job_id"), ownerID, header.Filename, file)
	if err != nil {
		s.logger.Error("submission rejected", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "submission failed")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// handleJob serves /jobs/{id}/progress and /jobs/{id}.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")

	if jobID, ok := strings.CutSuffix(rest, "/progress"); ok && !strings.Contains(jobID, "/") && jobID != "" {
		sse.Stream(w, r, s.bus, jobID, s.logger)
		return
	}

	if rest == "" || strings.Contains(rest, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	job, ok := s.orchestrator.Job(rest)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id":   job.ID,
		"owner_id": job.OwnerID,
		"status":   string(job.Status),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
