package config

const (
	defaultScratchDir             = "~/.local/share/cognivoice/scratch"
	defaultDataDir                = "~/.local/share/cognivoice/data"
	defaultLogDir                 = "~/.local/share/cognivoice/logs"
	defaultWorkerBind             = "127.0.0.1:8301"
	defaultGatewayBind            = "127.0.0.1:8300"
	defaultWorkerURL              = "http://127.0.0.1:8301"
	defaultWebhookTimeoutSeconds  = 5
	defaultForwardTimeoutSeconds  = 10
	defaultHeartbeatInterval      = 10
	defaultSilenceThresholdDB     = 30
	defaultNormalization          = "rms"
	defaultSampleRate             = 16000
	defaultSegmentSeconds         = 7
	defaultHighRiskThreshold      = 0.75
	defaultModerateRiskThreshold  = 0.5
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultClassifierCommand      = "cognivoice-infer"
	defaultFeatureCommand         = "cognivoice-features"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ScratchDir:  defaultScratchDir,
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			WorkerBind:  defaultWorkerBind,
			GatewayBind: defaultGatewayBind,
		},
		Webhook: Webhook{
			TimeoutSeconds: defaultWebhookTimeoutSeconds,
		},
		Gateway: Gateway{
			WorkerURL:             defaultWorkerURL,
			ForwardTimeoutSeconds: defaultForwardTimeoutSeconds,
		},
		Progress: Progress{
			HeartbeatInterval: defaultHeartbeatInterval,
		},
		Pipeline: Pipeline{
			SilenceThresholdDB: defaultSilenceThresholdDB,
			Normalization:      defaultNormalization,
			SampleRate:         defaultSampleRate,
			SegmentSeconds:     defaultSegmentSeconds,
			ClassifierCommand:  defaultClassifierCommand,
			FeatureCommand:     defaultFeatureCommand,
			HighRiskThreshold:  defaultHighRiskThreshold,
			ModerateThreshold:  defaultModerateRiskThreshold,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
