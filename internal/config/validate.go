package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWebhook(); err != nil {
		return err
	}
	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := c.validateProgress(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWebhook() error {
	if strings.TrimSpace(c.Webhook.TargetURL) != "" {
		if _, err := url.Parse(c.Webhook.TargetURL); err != nil {
			return fmt.Errorf("webhook.target_url: %w", err)
		}
		if strings.TrimSpace(c.Webhook.SharedSecret) == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/cognivoice/config.toml"
			}
			return fmt.Errorf("webhook.shared_secret is required when webhook.target_url is set. Set COGNIVOICE_INTERNAL_SECRET env var or edit %s (create with 'cognivoice config init')", defaultPath)
		}
	}
	if c.Webhook.TimeoutSeconds <= 0 {
		return errors.New("webhook.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateGateway() error {
	if strings.TrimSpace(c.Gateway.WorkerURL) == "" {
		return errors.New("gateway.worker_url must be set")
	}
	if _, err := url.Parse(c.Gateway.WorkerURL); err != nil {
		return fmt.Errorf("gateway.worker_url: %w", err)
	}
	if c.Gateway.ForwardTimeoutSeconds <= 0 {
		return errors.New("gateway.forward_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateProgress() error {
	if c.Progress.HeartbeatInterval <= 0 {
		return errors.New("progress.heartbeat_interval must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Normalization {
	case "rms", "peak":
	default:
		return fmt.Errorf("pipeline.normalization must be %q or %q", "rms", "peak")
	}
	if err := ensurePositiveMap(map[string]int{
		"pipeline.silence_threshold_db": c.Pipeline.SilenceThresholdDB,
		"pipeline.sample_rate":          c.Pipeline.SampleRate,
		"pipeline.segment_seconds":      c.Pipeline.SegmentSeconds,
	}); err != nil {
		return err
	}
	if c.Pipeline.ModerateThreshold <= 0 || c.Pipeline.ModerateThreshold > 1 {
		return errors.New("pipeline.moderate_threshold must be between 0 and 1")
	}
	if c.Pipeline.HighRiskThreshold <= 0 || c.Pipeline.HighRiskThreshold > 1 {
		return errors.New("pipeline.high_risk_threshold must be between 0 and 1")
	}
	if c.Pipeline.HighRiskThreshold <= c.Pipeline.ModerateThreshold {
		return errors.New("pipeline.high_risk_threshold must be greater than pipeline.moderate_threshold")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
