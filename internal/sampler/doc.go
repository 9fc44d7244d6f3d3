// Package sampler extracts a fixed number of evenly spaced JPEG frames from a
// video.
//
// Sample is backend-agnostic: it drives any VideoSource through duration
// discovery and a serial seek-then-capture loop, returning either exactly
// count frames in increasing timestamp order or a *SamplingError. Two
// backends ship with the package:
//   - FFmpegSource (default) probes with ffprobe and captures each frame with a
//     short-lived ffmpeg process writing MJPEG to stdout.
//   - OpenCVSource (build tag "opencv") decodes in-process through gocv.
//
// Open selects a backend by its configuration name.
package sampler
