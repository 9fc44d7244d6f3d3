package config

const (
	defaultConfigPath        = "~/.config/trafficlens/config.toml"
	defaultDataDir           = "~/.local/share/trafficlens"
	defaultLogDir            = "~/.local/share/trafficlens/logs"
	defaultAPIBind           = "127.0.0.1:7488"
	defaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel       = "gemini-2.0-flash"
	defaultGeminiTimeout     = 120
	defaultMaxPayloadMB      = 15
	defaultFrameCount        = 5
	defaultJPEGQuality       = 0.7
	defaultSamplerBackend    = "ffmpeg"
	defaultExtractionDwellMS = 800
	defaultStageDwellMS      = 600
	defaultMaxUploadMB       = 20
	defaultNtfyTimeout       = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Gemini: Gemini{
			BaseURL:        defaultGeminiBaseURL,
			Model:          defaultGeminiModel,
			TimeoutSeconds: defaultGeminiTimeout,
			MaxPayloadMB:   defaultMaxPayloadMB,
		},
		Sampler: Sampler{
			FrameCount:  defaultFrameCount,
			JPEGQuality: defaultJPEGQuality,
			Backend:     defaultSamplerBackend,
		},
		Pipeline: Pipeline{
			ExtractionDwellMS: defaultExtractionDwellMS,
			StageDwellMS:      defaultStageDwellMS,
		},
		Upload: Upload{
			MaxUploadMB: defaultMaxUploadMB,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
