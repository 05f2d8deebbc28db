// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"cognivoice/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.WorkerBind = "127.0.0.1:0"
	cfg.Paths.GatewayBind = "127.0.0.1:0"
	cfg.Webhook.TargetURL = ""
	cfg.Webhook.SharedSecret = "test-secret"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithWebhook points the worker callback at the given relay endpoint.
func WithWebhook(targetURL, secret string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Webhook.TargetURL = targetURL
		cfg.Webhook.SharedSecret = secret
	}
}

// WithSegmentSeconds overrides the analysis window length.
func WithSegmentSeconds(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.SegmentSeconds = seconds
	}
}
