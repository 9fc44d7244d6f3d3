package deps

import (
	"strings"

	"trafficlens/internal/config"
	"trafficlens/internal/sampler"
)

// SamplerRequirements lists the binaries the configured sampler backend
// executes. The OpenCV backend decodes in-process, so both are optional there.
func SamplerRequirements(cfg *config.Config) []Requirement {
	optional := strings.EqualFold(strings.TrimSpace(cfg.Sampler.Backend), sampler.BackendOpenCV)
	return []Requirement{
		{
			Name:        "ffmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Captures JPEG frames at sampled timestamps",
			Optional:    optional,
		},
		{
			Name:        "ffprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Reads video duration before sampling",
			Optional:    optional,
		},
	}
}
