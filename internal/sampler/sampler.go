package sampler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"trafficlens/internal/logging"
	"trafficlens/internal/services"
)

const (
	// DefaultFrameCount is the number of frames sampled when callers have no preference.
	DefaultFrameCount = 5
	// DefaultQuality is the lossy encoder quality factor applied to every frame.
	DefaultQuality = 0.7
	// JPEGMIMEType is the MIME type of every frame produced by this package.
	JPEGMIMEType = "image/jpeg"
)

// Frame is an encoded still image captured at Timestamp seconds.
type Frame struct {
	Timestamp float64
	MIMEType  string
	Data      []byte
}

// Base64 returns the standard base64 encoding of the frame bytes.
func (f Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// VideoSource is a seekable media resource owned by the caller.
type VideoSource interface {
	// Duration reports the playable length in seconds.
	Duration(ctx context.Context) (float64, error)
	// Dimensions reports the native pixel size, or zeros when unknown.
	Dimensions() (width, height int)
	// CaptureAt seeks to seconds and returns the decoded picture encoded as JPEG.
	CaptureAt(ctx context.Context, seconds float64, quality float64) ([]byte, error)
}

// Source is a VideoSource opened by this package that must be closed by the caller.
type Source interface {
	VideoSource
	Close() error
}

// SamplingError reports a failed sampling run. No frames accompany it.
type SamplingError struct {
	Op        string
	Timestamp float64
	Err       error

	marker error
}

func (e *SamplingError) Error() string {
	if e.Op == "capture" {
		return fmt.Sprintf("sample frames: capture at %.2fs: %v", e.Timestamp, e.Err)
	}
	return fmt.Sprintf("sample frames: %s: %v", e.Op, e.Err)
}

func (e *SamplingError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.marker != nil {
		errs = append(errs, e.marker)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func invalid(op string, err error) *SamplingError {
	return &SamplingError{Op: op, Timestamp: -1, Err: err, marker: services.ErrValidation}
}

func decodeFailure(op string, ts float64, err error) *SamplingError {
	return &SamplingError{Op: op, Timestamp: ts, Err: err, marker: services.ErrExternalTool}
}

type options struct {
	quality float64
	logger  *slog.Logger
}

// Option customizes a sampling run.
type Option func(*options)

// WithQuality overrides the JPEG quality factor (0 < q <= 1).
func WithQuality(quality float64) Option {
	return func(o *options) {
		if quality > 0 && quality <= 1 {
			o.quality = quality
		}
	}
}

// WithLogger attaches a logger for per-frame debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Sample extracts count frames at evenly spaced timestamps i*duration/count.
// It is all-or-nothing: on any failure it returns a *SamplingError and no frames.
// The source is only seeked, never closed.
func Sample(ctx context.Context, src VideoSource, count int, opts ...Option) ([]Frame, error) {
	cfg := options{quality: DefaultQuality, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if src == nil {
		return nil, invalid("open", errors.New("video source is nil"))
	}
	if count < 1 {
		return nil, invalid("count", fmt.Errorf("frame count must be positive, got %d", count))
	}

	duration, err := src.Duration(ctx)
	if err != nil {
		return nil, decodeFailure("duration", -1, err)
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return nil, invalid("duration", fmt.Errorf("unusable duration %v", duration))
	}

	width, height := src.Dimensions()
	cfg.logger.Debug("sampling video",
		logging.Float64("duration_seconds", duration),
		logging.Int("width", width),
		logging.Int("height", height),
		logging.Int("frame_count", count),
	)

	interval := duration / float64(count)
	frames := make([]Frame, 0, count)
	for i := 0; i < count; i++ {
		ts := float64(i) * interval
		if err := ctx.Err(); err != nil {
			return nil, &SamplingError{Op: "capture", Timestamp: ts, Err: err}
		}
		data, err := src.CaptureAt(ctx, ts, cfg.quality)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, &SamplingError{Op: "capture", Timestamp: ts, Err: ctxErr}
			}
			return nil, decodeFailure("capture", ts, err)
		}
		if len(data) == 0 {
			return nil, decodeFailure("capture", ts, errors.New("no picture decoded"))
		}
		frames = append(frames, Frame{Timestamp: ts, MIMEType: JPEGMIMEType, Data: data})
		cfg.logger.Debug("frame captured",
			logging.Int("frame_index", i),
			logging.Float64("timestamp_seconds", ts),
			logging.Int("frame_bytes", len(data)),
		)
	}
	return frames, nil
}
