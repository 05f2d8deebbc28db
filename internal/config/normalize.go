package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWebhook(); err != nil {
		return err
	}
	c.normalizeGateway()
	c.normalizeProgress()
	if err := c.normalizePipeline(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.WorkerBind = strings.TrimSpace(c.Paths.WorkerBind)
	if c.Paths.WorkerBind == "" {
		c.Paths.WorkerBind = defaultWorkerBind
	}
	c.Paths.GatewayBind = strings.TrimSpace(c.Paths.GatewayBind)
	if c.Paths.GatewayBind == "" {
		c.Paths.GatewayBind = defaultGatewayBind
	}
	return nil
}

func (c *Config) normalizeWebhook() error {
	c.Webhook.TargetURL = strings.TrimSpace(c.Webhook.TargetURL)
	c.Webhook.SharedSecret = strings.TrimSpace(c.Webhook.SharedSecret)
	if c.Webhook.SharedSecret == "" {
		if value, ok := os.LookupEnv("COGNIVOICE_INTERNAL_SECRET"); ok {
			c.Webhook.SharedSecret = strings.TrimSpace(value)
		}
	}
	if c.Webhook.TimeoutSeconds <= 0 {
		c.Webhook.TimeoutSeconds = defaultWebhookTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeGateway() {
	c.Gateway.WorkerURL = strings.TrimRight(strings.TrimSpace(c.Gateway.WorkerURL), "/")
	if c.Gateway.WorkerURL == "" {
		c.Gateway.WorkerURL = defaultWorkerURL
	}
	if c.Gateway.ForwardTimeoutSeconds <= 0 {
		c.Gateway.ForwardTimeoutSeconds = defaultForwardTimeoutSeconds
	}
}

func (c *Config) normalizeProgress() {
	if c.Progress.HeartbeatInterval <= 0 {
		c.Progress.HeartbeatInterval = defaultHeartbeatInterval
	}
}

func (c *Config) normalizePipeline() error {
	c.Pipeline.Normalization = strings.ToLower(strings.TrimSpace(c.Pipeline.Normalization))
	if c.Pipeline.Normalization == "" {
		c.Pipeline.Normalization = defaultNormalization
	}
	if c.Pipeline.SilenceThresholdDB <= 0 {
		c.Pipeline.SilenceThresholdDB = defaultSilenceThresholdDB
	}
	if c.Pipeline.SampleRate <= 0 {
		c.Pipeline.SampleRate = defaultSampleRate
	}
	if c.Pipeline.SegmentSeconds <= 0 {
		c.Pipeline.SegmentSeconds = defaultSegmentSeconds
	}
	c.Pipeline.ClassifierCommand = strings.TrimSpace(c.Pipeline.ClassifierCommand)
	if c.Pipeline.ClassifierCommand == "" {
		c.Pipeline.ClassifierCommand = defaultClassifierCommand
	}
	c.Pipeline.FeatureCommand = strings.TrimSpace(c.Pipeline.FeatureCommand)
	if c.Pipeline.FeatureCommand == "" {
		c.Pipeline.FeatureCommand = defaultFeatureCommand
	}
	if strings.TrimSpace(c.Pipeline.VisualizationDir) != "" {
		expanded, err := expandPath(c.Pipeline.VisualizationDir)
		if err != nil {
			return fmt.Errorf("pipeline.visualization_dir: %w", err)
		}
		c.Pipeline.VisualizationDir = expanded
	}
	if c.Pipeline.HighRiskThreshold <= 0 {
		c.Pipeline.HighRiskThreshold = defaultHighRiskThreshold
	}
	if c.Pipeline.ModerateThreshold <= 0 {
		c.Pipeline.ModerateThreshold = defaultModerateRiskThreshold
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
