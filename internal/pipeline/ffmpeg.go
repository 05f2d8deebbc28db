package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cognivoice/internal/config"
)

// FFmpegEngine implements AudioEngine by shelling out to ffmpeg/ffprobe.
type FFmpegEngine struct {
	ffmpeg        string
	ffprobe       string
	sampleRate    int
	silenceDB     int
	normalization string
	exec          Executor
}

// EngineOption configures the engine.
type EngineOption func(*FFmpegEngine)

// WithEngineExecutor injects a custom executor (primarily for tests).
func WithEngineExecutor(exec Executor) EngineOption {
	return func(e *FFmpegEngine) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// NewFFmpegEngine constructs the preprocessing engine from pipeline settings.
func NewFFmpegEngine(cfg *config.Config, opts ...EngineOption) (*FFmpegEngine, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	engine := &FFmpegEngine{
		ffmpeg:        cfg.FFmpegBinary(),
		ffprobe:       cfg.FFprobeBinary(),
		sampleRate:    cfg.Pipeline.SampleRate,
		silenceDB:     cfg.Pipeline.SilenceThresholdDB,
		normalization: cfg.Pipeline.Normalization,
		exec:          commandExecutor{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

func (e *FFmpegEngine) run(ctx context.Context, inputPath, outputPath, filter string) error {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-af", filter,
		"-ar", strconv.Itoa(e.sampleRate),
		"-ac", "1",
		outputPath,
	}
	if _, err := e.exec.Run(ctx, e.ffmpeg, args); err != nil {
		return err
	}
	return nil
}

// Denoise writes a denoised mono copy of inputPath into outDir.
func (e *FFmpegEngine) Denoise(ctx context.Context, inputPath, outDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outDir, base+"_denoised.wav")
	if err := e.run(ctx, inputPath, outputPath, "afftdn=nr=12:nf=-25"); err != nil {
		return "", fmt.Errorf("denoise: %w", err)
	}
	return outputPath, nil
}

// TrimSilence removes leading, trailing, and interior spans quieter than the
// configured floor.
func (e *FFmpegEngine) TrimSilence(ctx context.Context, inputPath, outputPath string) error {
	threshold := fmt.Sprintf("-%ddB", e.silenceDB)
	filter := fmt.Sprintf(
		"silenceremove=start_periods=1:start_threshold=%s:stop_periods=-1:stop_threshold=%s:detection=peak",
		threshold, threshold,
	)
	if err := e.run(ctx, inputPath, outputPath, filter); err != nil {
		return fmt.Errorf("trim silence: %w", err)
	}
	return nil
}

// Normalize applies the configured loudness normalization mode.
func (e *FFmpegEngine) Normalize(ctx context.Context, inputPath, outputPath string) error {
	filter := "loudnorm=I=-20:TP=-1.5:LRA=11"
	if e.normalization == "peak" {
		filter = "dynaudnorm=p=0.95"
	}
	if err := e.run(ctx, inputPath, outputPath, filter); err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	return nil
}

// Duration reports the playable length of an audio file via ffprobe.
func (e *FFmpegEngine) Duration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	output, err := e.exec.Run(ctx, e.ffprobe, args)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}
	seconds, err := strconv.ParseFloat(string(bytes.TrimSpace(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", bytes.TrimSpace(output), err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %v", seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
