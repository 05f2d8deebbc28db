package pipeline

import (
	"context"
	"time"

	"cognivoice/internal/analysis"
)

// AudioEngine performs the signal-level preprocessing steps. Implementations
// are opaque to the pipeline; each method reads one file and writes one file.
// Any failure is non-recoverable for the job.
type AudioEngine interface {
	// Denoise writes a denoised copy of inputPath into outDir and returns its path.
	Denoise(ctx context.Context, inputPath, outDir string) (string, error)
	// TrimSilence removes spans below the configured loudness floor.
	TrimSilence(ctx context.Context, inputPath, outputPath string) error
	// Normalize applies the configured loudness normalization.
	Normalize(ctx context.Context, inputPath, outputPath string) error
	// Duration reports the playable length of an audio file.
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FeatureExtractor derives the heuristic speech-feature vector from the
// original (unprocessed) recording. Failures are recoverable: the pipeline
// substitutes a fixed fallback vector.
type FeatureExtractor interface {
	Extract(ctx context.Context, originalPath string) (analysis.SpeechFeatures, error)
}

// Classifier scores the given number of fixed-length windows of the cleaned
// audio, returning one Dementia probability per window in order.
type Classifier interface {
	Score(ctx context.Context, cleanedPath string, windows int) ([]float64, error)
}

// Visualizer renders an optional segment-prediction figure and returns a URI
// clients can fetch it from. Failures are advisory only.
type Visualizer interface {
	Render(ctx context.Context, originalPath string, segments []analysis.Segment, winner analysis.Label) (string, error)
}

// NoopVisualizer skips rendering entirely.
type NoopVisualizer struct{}

func (NoopVisualizer) Render(context.Context, string, []analysis.Segment, analysis.Label) (string, error) {
	return "", nil
}
