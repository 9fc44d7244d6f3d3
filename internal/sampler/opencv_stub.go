//go:build !opencv

package sampler

import "trafficlens/internal/services"

func openOpenCV(string) (Source, error) {
	return nil, services.Wrap(services.ErrConfiguration, "extraction", "open video",
		"opencv backend unavailable; rebuild with -tags opencv or set sampler.backend = \"ffmpeg\"", nil)
}
