package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	ScratchDir  string `toml:"scratch_dir"`
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	WorkerBind  string `toml:"worker_bind"`
	GatewayBind string `toml:"gateway_bind"`
}

// Webhook configures the worker's terminal callback to the gateway.
type Webhook struct {
	TargetURL      string `toml:"target_url"`
	SharedSecret   string `toml:"shared_secret"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Gateway configures the client-facing service.
type Gateway struct {
	WorkerURL             string `toml:"worker_url"`
	ForwardTimeoutSeconds int    `toml:"forward_timeout_seconds"`
}

// Progress configures the in-memory progress bus.
type Progress struct {
	HeartbeatInterval int `toml:"heartbeat_interval"`
}

// Pipeline configures the audio analysis stages.
type Pipeline struct {
	// SilenceThresholdDB is the loudness floor (in dB below peak) under which
	// audio is treated as silence during trimming.
	SilenceThresholdDB int `toml:"silence_threshold_db"`
	// Normalization selects the loudness normalization mode: "rms" or "peak".
	Normalization  string `toml:"normalization"`
	SampleRate     int    `toml:"sample_rate"`
	SegmentSeconds int    `toml:"segment_seconds"`
	// ClassifierCommand is the external inference command invoked per job.
	ClassifierCommand string `toml:"classifier_command"`
	// FeatureCommand is the external heuristic speech-feature command.
	FeatureCommand string `toml:"feature_command"`
	// VisualizationDir receives rendered segment plots; empty disables rendering.
	VisualizationDir  string  `toml:"visualization_dir"`
	HighRiskThreshold float64 `toml:"high_risk_threshold"`
	ModerateThreshold float64 `toml:"moderate_threshold"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cognivoice.
//
// Configuration sections by subsystem:
//   - Paths: scratch/data/log directories and service bind addresses
//   - Webhook: worker-to-gateway terminal callback
//   - Gateway: submission forwarding to the worker
//   - Progress: SSE heartbeat interval
//   - Pipeline: preprocessing thresholds and external stage commands
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Webhook  Webhook  `toml:"webhook"`
	Gateway  Gateway  `toml:"gateway"`
	Progress Progress `toml:"progress"`
	Pipeline Pipeline `toml:"pipeline"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cognivoice/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cognivoice.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for service operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ScratchDir, c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Pipeline.VisualizationDir) != "" {
		if err := os.MkdirAll(c.Pipeline.VisualizationDir, 0o755); err != nil {
			return fmt.Errorf("create visualization directory %q: %w", c.Pipeline.VisualizationDir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for preprocessing.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used to measure audio duration.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// WebhookTimeout reports the terminal callback timeout in seconds.
func (c *Config) WebhookTimeout() int {
	if c.Webhook.TimeoutSeconds <= 0 {
		return defaultWebhookTimeoutSeconds
	}
	return c.Webhook.TimeoutSeconds
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
