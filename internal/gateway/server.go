package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"cognivoice/internal/analysis"
	"cognivoice/internal/config"
	"cognivoice/internal/logging"
	"cognivoice/internal/progress"
	"cognivoice/internal/results"
	"cognivoice/internal/sse"
)

const maxUploadBytes = 64 << 20

// Server is the gateway HTTP service.
type Server struct {
	bind      string
	workerURL string
	secret    string
	logger    *slog.Logger
	bus       *progress.Bus
	store     *results.Store
	forward   *http.Client

	listener net.Listener
	server   *http.Server
}

// NewServer builds the gateway HTTP server.
func NewServer(cfg *config.Config, bus *progress.Bus, store *results.Store, logger *slog.Logger) (*Server, error) {
	if cfg == nil || bus == nil || store == nil {
		return nil, errors.New("config, bus, and store required")
	}
	bind := strings.TrimSpace(cfg.Paths.GatewayBind)
	if bind == "" {
		return nil, errors.New("gateway bind address required")
	}
	workerURL := strings.TrimSpace(cfg.Gateway.WorkerURL)
	if workerURL == "" {
		return nil, errors.New("worker url required")
	}
	if strings.TrimSpace(cfg.Webhook.SharedSecret) == "" {
		return nil, errors.New("shared secret required to authenticate the relay endpoint")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	forwardTimeout := time.Duration(cfg.Gateway.ForwardTimeoutSeconds) * time.Second
	if forwardTimeout <= 0 {
		forwardTimeout = 10 * time.Second
	}

	srv := &Server{
		bind:      bind,
		workerURL: strings.TrimSuffix(workerURL, "/"),
		secret:    cfg.Webhook.SharedSecret,
		logger:    logger.With(logging.String(logging.FieldComponent, "gateway-server")),
		bus:       bus,
		store:     store,
		forward:   &http.Client{Timeout: forwardTimeout},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", srv.handleSubmit)
	mux.HandleFunc("/jobs/", srv.handleProgress)
	mux.HandleFunc("/internal/progress", srv.handleRelay)
	mux.HandleFunc("/results", srv.handleResults)
	mux.HandleFunc("/results/", srv.handleResult)
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
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("gateway listening", logging.String("address", listener.Addr().String()))
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

// handleSubmit re-posts the client upload to the worker. The gateway assigns
// the job id when the client did not supply one, so the client can subscribe
// to the progress stream before the worker publishes anything.
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

	ownerID := strings.TrimSpace(r.FormValue("owner_id"))
	if ownerID == "" {
		s.writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}
	jobID := strings.TrimSpace(r.FormValue("job_id"))
	if jobID == "" {
		jobID = uuid.NewString()
	}

	status, body, err := s.forwardSubmission(r.Context(), jobID, ownerID, header.Filename, file)
	if err != nil {
		s.logger.Error("worker forward failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
		)
		s.writeError(w, http.StatusServiceUnavailable, "analysis service unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) forwardSubmission(ctx context.Context, jobID, ownerID, fileName string, audio io.Reader) (int, []byte, error) {
	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)

	go func() {
		err := func() error {
			part, err := form.CreateFormFile("audio", fileName)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, audio); err != nil {
				return err
			}
			if err := form.WriteField("job_id", jobID); err != nil {
				return err
			}
			if err := form.WriteField("owner_id", ownerID); err != nil {
				return err
			}
			return form.Close()
		}()
		writer.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.workerURL+"/jobs", reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build worker request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.forward.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post to worker: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read worker response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// handleProgress serves GET /jobs/{id}/progress as an SSE stream.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	jobID, ok := strings.CutSuffix(rest, "/progress")
	if !ok || jobID == "" || strings.Contains(jobID, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	sse.Stream(w, r, s.bus, jobID, s.logger)
}

// handleRelay is the worker's terminal callback. Authentication failures have
// no side effects. An authenticated delivery is always republished to local
// subscribers; persistence is attempted only for successful final results, and
// a persistence failure still acknowledges the delivery since the worker never
// retries.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Event is a pointer so an absent field is distinguishable from a zero
	// event; republishing a fabricated step-0 event would corrupt live streams.
	var envelope struct {
		JobID        string          `json:"job_id"`
		OwnerID      string          `json:"owner_id"`
		SharedSecret string          `json:"shared_secret"`
		Event        *progress.Event `json:"event"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&envelope); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if subtle.ConstantTimeCompare([]byte(envelope.SharedSecret), []byte(s.secret)) != 1 {
		s.writeError(w, http.StatusForbidden, "invalid shared secret")
		return
	}
	if strings.TrimSpace(envelope.JobID) == "" || strings.TrimSpace(envelope.OwnerID) == "" || envelope.Event == nil {
		s.writeError(w, http.StatusBadRequest, "job_id, owner_id, and event required")
		return
	}
	event := *envelope.Event

	s.bus.Publish(envelope.JobID, event)

	if s.shouldPersist(event) {
		if err := s.persist(r.Context(), envelope.JobID, envelope.OwnerID, event); err != nil {
			s.logger.Error("persist result failed",
				logging.String(logging.FieldJobID, envelope.JobID),
				logging.Error(err),
			)
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) shouldPersist(event progress.Event) bool {
	return event.Final() && len(event.Result) > 0 && !progress.ResultCarriesError(event.Result)
}

func (s *Server) persist(ctx context.Context, jobID, ownerID string, event progress.Event) error {
	var result analysis.Result
	if err := json.Unmarshal(event.Result, &result); err != nil {
		return fmt.Errorf("decode result payload: %w", err)
	}
	return s.store.Insert(ctx, jobID, ownerID, result)
}

// handleResults lists persisted outcomes, scoped to an owner when owner_id is
// given and newest-first either way.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var (
		records []*results.Record
		err     error
	)
	if ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id")); ownerID != "" {
		records, err = s.store.ListByOwner(r.Context(), ownerID)
	} else {
		records, err = s.store.Recent(r.Context(), 50)
	}
	if err != nil {
		s.logger.Error("list results failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "list results failed")
		return
	}

	payload := make([]resultEntry, 0, len(records))
	for _, record := range records {
		payload = append(payload, newResultEntry(record))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": payload})
}

// handleResult serves GET /results/{job_id}.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobID := strings.TrimPrefix(r.URL.Path, "/results/")
	if jobID == "" || strings.Contains(jobID, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	record, err := s.store.GetByJobID(r.Context(), jobID)
	if errors.Is(err, results.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "result not found")
		return
	}
	if err != nil {
		s.logger.Error("get result failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "get result failed")
		return
	}
	s.writeJSON(w, http.StatusOK, newResultEntry(record))
}

type resultEntry struct {
	JobID     string          `json:"job_id"`
	OwnerID   string          `json:"owner_id"`
	CreatedAt string          `json:"created_at"`
	Result    analysis.Result `json:"result"`
}

func newResultEntry(record *results.Record) resultEntry {
	return resultEntry{
		JobID:     record.JobID,
		OwnerID:   record.OwnerID,
		CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339),
		Result:    record.Result,
	}
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
