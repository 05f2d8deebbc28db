package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cognivoice/internal/analysis"
	"cognivoice/internal/config"
	"cognivoice/internal/logging"
)

// ErrInsufficientAudio marks a recording too short for even one analysis window.
var ErrInsufficientAudio = errors.New("audio shorter than one analysis window")

// FallbackFeatures is substituted when heuristic feature extraction fails.
// Feature failures never fail the job.
var FallbackFeatures = analysis.SpeechFeatures{
	PauseFrequency:       0.45,
	SpeechRate:           0.65,
	VocabularyComplexity: 0.55,
	SemanticFluency:      0.62,
}

// Pipeline wires the stage collaborators together for one job at a time. It
// holds no per-job state; every method takes the paths it operates on.
type Pipeline struct {
	engine         AudioEngine
	features       FeatureExtractor
	classifier     Classifier
	visualizer     Visualizer
	thresholds     analysis.Thresholds
	segmentSeconds int
	logger         *slog.Logger
}

// New assembles a pipeline from explicit collaborators.
func New(cfg *config.Config, engine AudioEngine, features FeatureExtractor, classifier Classifier, visualizer Visualizer, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if engine == nil || features == nil || classifier == nil {
		return nil, errors.New("engine, feature extractor, and classifier required")
	}
	if visualizer == nil {
		visualizer = NoopVisualizer{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		engine:     engine,
		features:   features,
		classifier: classifier,
		visualizer: visualizer,
		thresholds: analysis.Thresholds{
			Moderate: cfg.Pipeline.ModerateThreshold,
			High:     cfg.Pipeline.HighRiskThreshold,
		},
		segmentSeconds: cfg.Pipeline.SegmentSeconds,
		logger:         logger.With(logging.String(logging.FieldComponent, "pipeline")),
	}, nil
}

// NewFromConfig assembles a pipeline with the default exec-backed collaborators.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	engine, err := NewFFmpegEngine(cfg)
	if err != nil {
		return nil, err
	}
	classifier, err := NewExecClassifier(cfg.Pipeline.ClassifierCommand)
	if err != nil {
		return nil, err
	}
	features, err := NewExecFeatureExtractor(cfg.Pipeline.FeatureCommand)
	if err != nil {
		return nil, err
	}
	var visualizer Visualizer = NoopVisualizer{}
	if strings.TrimSpace(cfg.Pipeline.VisualizationDir) != "" {
		visualizer, err = NewExecVisualizer(cfg.Pipeline.ClassifierCommand, cfg.Pipeline.VisualizationDir)
		if err != nil {
			return nil, err
		}
	}
	return New(cfg, engine, features, classifier, visualizer, logger)
}

// Preprocess runs the denoise, silence-trim, and normalize chain inside jobDir
// and returns the cleaned audio path. Intermediates stay in jobDir; the caller
// owns jobDir's lifetime and removes it on both success and failure.
func (p *Pipeline) Preprocess(ctx context.Context, jobDir, inputPath string) (string, error) {
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("create job directory: %w", err)
	}

	denoised, err := p.engine.Denoise(ctx, inputPath, jobDir)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	trimmed := filepath.Join(jobDir, base+"_trimmed.wav")
	if err := p.engine.TrimSilence(ctx, denoised, trimmed); err != nil {
		return "", err
	}

	clean := filepath.Join(jobDir, base+"_clean.wav")
	if err := p.engine.Normalize(ctx, trimmed, clean); err != nil {
		return "", err
	}
	return clean, nil
}

// Features extracts the heuristic speech vector from the original recording,
// substituting the fixed fallback vector on any failure.
func (p *Pipeline) Features(ctx context.Context, originalPath string) analysis.SpeechFeatures {
	features, err := p.features.Extract(ctx, originalPath)
	if err != nil {
		p.logger.Warn("feature extraction failed, using fallback", logging.Error(err))
		return FallbackFeatures
	}
	return features
}

// Windows reports how many full fixed-length windows the cleaned audio yields.
// A trailing partial window is discarded.
func (p *Pipeline) Windows(ctx context.Context, cleanedPath string) (int, error) {
	duration, err := p.engine.Duration(ctx, cleanedPath)
	if err != nil {
		return 0, err
	}
	windows := int(duration / (time.Duration(p.segmentSeconds) * time.Second))
	if windows == 0 {
		return 0, ErrInsufficientAudio
	}
	return windows, nil
}

// Infer windows the cleaned audio, scores each window, and returns the ordered
// segment sequence. Window boundaries are position-derived, so the sequence
// order matches audio order.
func (p *Pipeline) Infer(ctx context.Context, cleanedPath string) ([]analysis.Segment, error) {
	windows, err := p.Windows(ctx, cleanedPath)
	if err != nil {
		return nil, err
	}
	scores, err := p.classifier.Score(ctx, cleanedPath, windows)
	if err != nil {
		return nil, err
	}
	segments := make([]analysis.Segment, len(scores))
	for i, probability := range scores {
		label := analysis.Control
		if probability > 0.5 {
			label = analysis.Dementia
		}
		segments[i] = analysis.Segment{Label: label, Probability: probability}
	}
	return segments, nil
}

// Decide aggregates the segment sequence into the final verdict using the
// configured risk thresholds.
func (p *Pipeline) Decide(segments []analysis.Segment) (analysis.Verdict, error) {
	return analysis.Decide(segments, p.thresholds)
}

// Visualize renders the optional segment figure. Failures are logged and
// reported as an empty URI; they never fail the job.
func (p *Pipeline) Visualize(ctx context.Context, originalPath string, segments []analysis.Segment, winner analysis.Label) string {
	uri, err := p.visualizer.Render(ctx, originalPath, segments, winner)
	if err != nil {
		p.logger.Warn("visualization failed", logging.Error(err))
		return ""
	}
	return uri
}
