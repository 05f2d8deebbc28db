package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cognivoice/internal/analysis"
	"cognivoice/internal/config"
	"cognivoice/internal/logging"
	"cognivoice/internal/pipeline"
	"cognivoice/internal/progress"
	"cognivoice/internal/webhook"
)

// Stage progress messages shown to subscribers, keyed by pipeline order.
const (
	messagePreprocess = "Preprocessing audio..."
	messageFeatures   = "Feature extraction..."
	messageInference  = "Speech pattern analysis..."
	messageInsights   = "Generating insights..."
	messageComplete   = "Complete"
	messageError      = "Error"
)

// Orchestrator accepts job handoffs and runs each one to completion on a
// dedicated goroutine. Submission returns as soon as the audio is durable on
// scratch storage; the client learns the outcome through the progress stream
// and the gateway relay, never through the submission response.
type Orchestrator struct {
	cfg      *config.Config
	bus      *progress.Bus
	pipe     *pipeline.Pipeline
	notifier webhook.Notifier
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(cfg *config.Config, bus *progress.Bus, pipe *pipeline.Pipeline, notifier webhook.Notifier, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil || bus == nil || pipe == nil {
		return nil, errors.New("config, bus, and pipeline required")
	}
	if notifier == nil {
		notifier = webhook.NewNotifier(cfg)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		bus:      bus,
		pipe:     pipe,
		notifier: notifier,
		logger:   logger.With(logging.String(logging.FieldComponent, "orchestrator")),
		jobs:     make(map[string]*Job),
	}, nil
}

// Submit stores the uploaded audio and starts the job. A blank jobID is
// assigned a fresh UUID. ownerID is mandatory: the terminal relay refuses
// anonymous deliveries, so an ownerless job could never persist its result.
func (o *Orchestrator) Submit(jobID, ownerID, fileName string, audio io.Reader) (*Job, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, errors.New("owner id required")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." {
		fileName = jobID + ".wav"
	}

	if err := o.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          jobID,
		OwnerID:     ownerID,
		FileName:    fileName,
		InputPath:   filepath.Join(o.cfg.Paths.ScratchDir, jobID+filepath.Ext(fileName)),
		Status:      StatusQueued,
		SubmittedAt: time.Now().UTC(),
	}

	// Reserve the registry slot before touching scratch so a duplicate
	// submission cannot clobber a running job's input file.
	o.mu.Lock()
	o.evictTerminalLocked()
	if _, exists := o.jobs[jobID]; exists {
		o.mu.Unlock()
		return nil, fmt.Errorf("job %s already submitted", jobID)
	}
	o.jobs[jobID] = job
	o.mu.Unlock()

	if err := writeUpload(job.InputPath, audio); err != nil {
		o.mu.Lock()
		delete(o.jobs, jobID)
		o.mu.Unlock()
		return nil, err
	}

	o.logger.Info("job accepted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldOwnerID, job.OwnerID),
		logging.String("file", job.FileName),
	)

	o.wg.Add(1)
	go o.run(job)

	return o.snapshot(jobID), nil
}

func writeUpload(path string, audio io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(file, audio); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fmt.Errorf("store upload: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close upload: %w", err)
	}
	return nil
}

// run is the single writer of the job's progress stream. Processing is bound
// to the service lifetime, not to any client connection, so it uses a
// background context throughout.
func (o *Orchestrator) run(job *Job) {
	defer o.wg.Done()

	ctx := context.Background()
	jobDir := filepath.Join(o.cfg.Paths.ScratchDir, job.ID)
	logger := o.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldOwnerID, job.OwnerID),
	)

	defer o.cleanup(job, jobDir, logger)

	o.setStatus(job.ID, StatusRunning, "")

	o.bus.Publish(job.ID, progress.Event{Step: progress.StepPreprocess, Message: messagePreprocess})
	logger.Info("stage started", logging.String(logging.FieldStage, "preprocess"))
	cleanPath, err := o.pipe.Preprocess(ctx, jobDir, job.InputPath)
	if err != nil {
		o.fail(job, logger, fmt.Errorf("preprocess: %w", err))
		return
	}

	o.bus.Publish(job.ID, progress.Event{Step: progress.StepFeatures, Message: messageFeatures})
	logger.Info("stage started", logging.String(logging.FieldStage, "features"))
	features := o.pipe.Features(ctx, job.InputPath)

	o.bus.Publish(job.ID, progress.Event{Step: progress.StepInference, Message: messageInference})
	logger.Info("stage started", logging.String(logging.FieldStage, "inference"))
	segments, err := o.pipe.Infer(ctx, cleanPath)
	if err != nil {
		o.fail(job, logger, fmt.Errorf("inference: %w", err))
		return
	}

	o.bus.Publish(job.ID, progress.Event{Step: progress.StepInsights, Message: messageInsights})
	logger.Info("stage started", logging.String(logging.FieldStage, "insights"))
	verdict, err := o.pipe.Decide(segments)
	if err != nil {
		o.fail(job, logger, fmt.Errorf("aggregate: %w", err))
		return
	}
	visualizationURL := o.pipe.Visualize(ctx, job.InputPath, segments, verdict.Label)

	result := analysis.NewResult(job.FileName, verdict, features, visualizationURL)
	payload, err := json.Marshal(result)
	if err != nil {
		o.fail(job, logger, fmt.Errorf("encode result: %w", err))
		return
	}

	final := progress.Event{
		Step:    progress.StepComplete,
		Message: messageComplete,
		IsFinal: true,
		Result:  payload,
	}
	o.finish(job, logger, final)
	o.setStatus(job.ID, StatusSucceeded, "")
	logger.Info("job completed",
		logging.String("prediction", verdict.Label.String()),
		logging.Float64("confidence", verdict.Confidence),
		logging.Int("segments", len(segments)),
	)
}

// fail publishes the single step-99 terminal event for the job.
func (o *Orchestrator) fail(job *Job, logger *slog.Logger, err error) {
	logger.Error("job failed", logging.Error(err))
	o.finish(job, logger, progress.ErrorEvent(messageError, err))
	o.setStatus(job.ID, StatusFailed, err.Error())
}

// finish publishes the terminal event locally before attempting relay
// delivery, so live subscribers always observe the outcome even when the
// gateway is unreachable. Delivery happens at most once and is never retried.
func (o *Orchestrator) finish(job *Job, logger *slog.Logger, event progress.Event) {
	o.bus.Publish(job.ID, event)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(o.cfg.WebhookTimeout())*time.Second)
	defer cancel()
	if err := o.notifier.Deliver(ctx, job.ID, job.OwnerID, event); err != nil {
		logger.Error("terminal callback failed", logging.Error(err))
	}
}

// cleanup removes the uploaded audio and the job's working directory on every
// outcome. Failures are logged and swallowed; scratch residue must never fail
// a job after its verdict is published.
func (o *Orchestrator) cleanup(job *Job, jobDir string, logger *slog.Logger) {
	if err := os.Remove(job.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove upload failed", logging.Error(err))
	}
	if err := os.RemoveAll(jobDir); err != nil {
		logger.Warn("remove job directory failed", logging.Error(err))
	}
}

// evictTerminalLocked trims finished jobs from the registry. Eviction is
// lazy: a finished job stays readable through Job until the next submission,
// which also frees its id for reuse and keeps the map bounded by in-flight
// work. Caller holds o.mu.
func (o *Orchestrator) evictTerminalLocked() {
	for id, job := range o.jobs {
		if job.Status == StatusSucceeded || job.Status == StatusFailed {
			delete(o.jobs, id)
		}
	}
}

func (o *Orchestrator) setStatus(jobID string, status Status, errMessage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return
	}
	job.Status = status
	job.ErrMessage = errMessage
	if status == StatusSucceeded || status == StatusFailed {
		job.FinishedAt = time.Now().UTC()
	}
}

func (o *Orchestrator) snapshot(jobID string) *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

// Job returns a snapshot of a submitted job.
func (o *Orchestrator) Job(jobID string) (*Job, bool) {
	job := o.snapshot(jobID)
	return job, job != nil
}

// Wait blocks until all in-flight jobs finish. Used during shutdown and in tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
