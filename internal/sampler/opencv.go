//go:build opencv

package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"trafficlens/internal/services"
)

// OpenCVSource decodes a video in-process with OpenCV's ffmpeg backend.
type OpenCVSource struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	duration float64
	width    int
	height   int
}

// OpenCapture opens path with OpenCV.
func OpenCapture(path string) (*OpenCVSource, error) {
	capture, err := gocv.OpenVideoCaptureWithAPI(path, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return nil, fmt.Errorf("opencv open %s: %w", path, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("opencv open %s: capture not opened", path)
	}
	src := &OpenCVSource{
		capture: capture,
		width:   int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:  int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}
	fps := capture.Get(gocv.VideoCaptureFPS)
	frames := capture.Get(gocv.VideoCaptureFrameCount)
	if fps > 0 && frames > 0 {
		src.duration = frames / fps
	}
	return src, nil
}

func openOpenCV(path string) (Source, error) {
	src, err := OpenCapture(path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extraction", "open video", "", err)
	}
	return src, nil
}

// Duration reports frame count divided by frame rate.
func (s *OpenCVSource) Duration(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.duration == 0 {
		return 0, errors.New("opencv: stream does not report frame count or fps")
	}
	return s.duration, nil
}

// Dimensions reports the native frame size.
func (s *OpenCVSource) Dimensions() (int, int) {
	return s.width, s.height
}

// CaptureAt seeks to seconds and encodes the decoded picture as JPEG.
func (s *OpenCVSource) CaptureAt(ctx context.Context, seconds float64, quality float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capture.Set(gocv.VideoCapturePosMsec, seconds*1000)
	img := gocv.NewMat()
	defer img.Close()
	if ok := s.capture.Read(&img); !ok || img.Empty() {
		return nil, fmt.Errorf("opencv: no picture decoded at %.3fs", seconds)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, int(math.Round(quality * 100))})
	if err != nil {
		return nil, fmt.Errorf("opencv encode: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Close releases the capture handle.
func (s *OpenCVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}
