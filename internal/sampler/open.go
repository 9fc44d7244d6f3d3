package sampler

import (
	"fmt"
	"strings"

	"trafficlens/internal/services"
)

const (
	// BackendFFmpeg decodes through the ffmpeg/ffprobe binaries.
	BackendFFmpeg = "ffmpeg"
	// BackendOpenCV decodes in-process through OpenCV (requires -tags opencv).
	BackendOpenCV = "opencv"
)

// Open returns a Source for path using the named backend.
func Open(backend, path string, opts FFmpegOptions) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFFmpeg:
		src, err := OpenFile(path, opts)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "extraction", "open video", "", err)
		}
		return src, nil
	case BackendOpenCV:
		src, err := openOpenCV(path)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "extraction", "open video", fmt.Sprintf("unknown sampler backend %q", backend), nil)
	}
}
