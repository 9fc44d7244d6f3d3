package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"trafficlens/internal/media/ffprobe"
)

// FFmpegOptions configures the ffmpeg-backed source.
type FFmpegOptions struct {
	FFmpegBinary  string
	FFprobeBinary string
}

type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

type probeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// FFmpegSource decodes a video file by shelling out to ffprobe and ffmpeg.
type FFmpegSource struct {
	path string
	opts FFmpegOptions

	run   commandRunner
	probe probeFunc

	mu     sync.Mutex
	probed bool
	info   ffprobe.Result
}

// OpenFile prepares an ffmpeg-backed source for path. Probing is deferred until
// Duration is first called.
func OpenFile(path string, opts FFmpegOptions) (*FFmpegSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("open video: empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open video: %s is a directory", path)
	}
	if strings.TrimSpace(opts.FFmpegBinary) == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(opts.FFprobeBinary) == "" {
		opts.FFprobeBinary = "ffprobe"
	}
	return &FFmpegSource{path: path, opts: opts, run: execRunner, probe: ffprobe.Inspect}, nil
}

// Duration probes the file once and reports its length in seconds.
func (s *FFmpegSource) Duration(ctx context.Context) (float64, error) {
	info, err := s.inspect(ctx)
	if err != nil {
		return 0, err
	}
	return info.DurationSeconds(), nil
}

// Dimensions reports the native size of the primary video stream. It is only
// meaningful after Duration has succeeded.
func (s *FFmpegSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Dimensions()
}

// CaptureAt decodes the picture at seconds and returns it as JPEG bytes.
func (s *FFmpegSource) CaptureAt(ctx context.Context, seconds float64, quality float64) ([]byte, error) {
	stdout, stderr, err := s.run(ctx, s.opts.FFmpegBinary, captureArgs(s.path, seconds, quality)...)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			return nil, fmt.Errorf("ffmpeg capture: %w", err)
		}
		return nil, fmt.Errorf("ffmpeg capture: %w: %s", err, detail)
	}
	if !isJPEG(stdout) {
		return nil, fmt.Errorf("ffmpeg capture: no picture decoded at %.3fs", seconds)
	}
	return stdout, nil
}

// Close releases nothing; ffmpeg processes are scoped to each capture.
func (s *FFmpegSource) Close() error { return nil }

func (s *FFmpegSource) inspect(ctx context.Context) (ffprobe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probed {
		return s.info, nil
	}
	info, err := s.probe(ctx, s.opts.FFprobeBinary, s.path)
	if err != nil {
		return ffprobe.Result{}, err
	}
	if _, ok := info.PrimaryVideo(); !ok {
		return ffprobe.Result{}, fmt.Errorf("probe %s: no video stream", s.path)
	}
	s.info = info
	s.probed = true
	return info, nil
}

func captureArgs(path string, seconds float64, quality float64) []string {
	return []string{
		"-v", "error",
		"-nostdin",
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(mjpegQScale(quality)),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	}
}

// mjpegQScale maps a 0..1 quality factor onto ffmpeg's mjpeg qscale where 2
// is best and 31 is worst.
func mjpegQScale(quality float64) int {
	if math.IsNaN(quality) {
		quality = DefaultQuality
	}
	quality = math.Max(0, math.Min(1, quality))
	return 2 + int(math.Round((1-quality)*29))
}

func isJPEG(data []byte) bool {
	return len(data) > 3 && data[0] == 0xFF && data[1] == 0xD8
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
