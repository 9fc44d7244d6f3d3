package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
)

// Validate ensures the configuration is usable. A missing Gemini credential is
// deliberately not an error here: it is reported per request instead.
func (c *Config) Validate() error {
	if err := c.validateGemini(); err != nil {
		return err
	}
	if err := c.validateSampler(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateGemini() error {
	parsed, err := url.Parse(c.Gemini.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("gemini.base_url must be an absolute URL, got %q", c.Gemini.BaseURL)
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		return errors.New("gemini.timeout_seconds must be positive")
	}
	if c.Gemini.MaxPayloadMB <= 0 || math.IsNaN(c.Gemini.MaxPayloadMB) || math.IsInf(c.Gemini.MaxPayloadMB, 0) {
		return errors.New("gemini.max_payload_mb must be positive")
	}
	return nil
}

func (c *Config) validateSampler() error {
	if c.Sampler.FrameCount <= 0 {
		return errors.New("sampler.frame_count must be positive")
	}
	if c.Sampler.JPEGQuality <= 0 || c.Sampler.JPEGQuality > 1 {
		return errors.New("sampler.jpeg_quality must be greater than 0 and at most 1")
	}
	switch c.Sampler.Backend {
	case "ffmpeg", "opencv":
	default:
		return fmt.Errorf("sampler.backend must be ffmpeg or opencv, got %q", c.Sampler.Backend)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.ExtractionDwellMS < 0 {
		return errors.New("pipeline.extraction_dwell_ms must not be negative")
	}
	if c.Pipeline.StageDwellMS < 0 {
		return errors.New("pipeline.stage_dwell_ms must not be negative")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.MaxUploadMB <= 0 {
		return errors.New("upload.max_upload_mb must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" {
		parsed, err := url.Parse(topic)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("notifications.ntfy_topic must be an absolute URL, got %q", topic)
		}
	}
	if c.Notifications.RequestTimeoutSeconds < 0 {
		return errors.New("notifications.request_timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "tint":
	default:
		return fmt.Errorf("logging.format must be console, json, or tint, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
