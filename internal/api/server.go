package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"trafficlens/internal/analysis"
	"trafficlens/internal/logging"
	"trafficlens/internal/metrics"
	"trafficlens/internal/pipeline"
	"trafficlens/internal/sampler"
	"trafficlens/internal/services"
	"trafficlens/internal/textutil"
)

const (
	defaultMaxRequestBytes = 32 << 20
	defaultMaxUploadBytes  = 20 << 20
	multipartOverhead      = 1 << 20
	defaultRunListLimit    = 20
	maxRunListLimit        = 500
)

// Options configures the HTTP router.
type Options struct {
	Service         *RunService
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	MaxRequestBytes int64
	MaxUploadBytes  int64
	UploadDir       string
}

type handlers struct {
	svc             *RunService
	logger          *slog.Logger
	maxRequestBytes int64
	maxUploadBytes  int64
	uploadDir       string
}

// NewRouter builds the gin engine serving the analysis API.
func NewRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &handlers{
		svc:             opts.Service,
		logger:          logger,
		maxRequestBytes: opts.MaxRequestBytes,
		maxUploadBytes:  opts.MaxUploadBytes,
		uploadDir:       opts.UploadDir,
	}
	if h.maxRequestBytes <= 0 {
		h.maxRequestBytes = defaultMaxRequestBytes
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = defaultMaxUploadBytes
	}

	router := gin.New()
	router.Use(RequestID(), Recovery(logger), AccessLog(logger), Instrument(opts.Metrics))

	router.GET("/healthz", h.health)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	apiGroup := router.Group("/api")
	apiGroup.POST("/analyze", h.analyzeFrames)
	apiGroup.POST("/videos", h.analyzeVideo)
	apiGroup.GET("/runs", h.listRuns)
	apiGroup.GET("/runs/:id", h.getRun)
	return router
}

func (h *handlers) analyzeFrames(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxRequestBytes)
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if bodyTooLarge(err, c.Request, h.maxRequestBytes) {
			writeError(c, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("Payload too large (over %.2fMB). Please upload a smaller video or reduce quality.", float64(h.maxRequestBytes)/(1024*1024)),
			})
			return
		}
		writeError(c, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Details: err.Error()})
		return
	}
	if len(req.Frames) == 0 {
		writeError(c, http.StatusBadRequest, ErrorResponse{Error: "No frames provided for analysis"})
		return
	}

	run, res, err := h.svc.AnalyzeFrames(c.Request.Context(), req.Frames, textutil.SanitizeLabel(req.FileName))
	if err != nil {
		h.writeRunError(c, run, err)
		return
	}
	c.Header("X-Run-ID", run.ID())
	c.JSON(http.StatusOK, res)
}

func (h *handlers) analyzeVideo(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	header, err := c.FormFile("video")
	if err != nil {
		if bodyTooLarge(err, c.Request, h.maxUploadBytes+multipartOverhead) {
			h.uploadTooLarge(c)
			return
		}
		writeError(c, http.StatusBadRequest, ErrorResponse{Error: "No video file provided", Details: err.Error()})
		return
	}
	if header.Size > h.maxUploadBytes {
		h.uploadTooLarge(c)
		return
	}
	if !strings.HasPrefix(strings.ToLower(header.Header.Get("Content-Type")), "video/") {
		writeError(c, http.StatusUnsupportedMediaType, ErrorResponse{Error: "Please upload a valid video file"})
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, ErrorResponse{Error: "Could not read uploaded video", Details: err.Error()})
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp(h.uploadDir, "upload-*"+textutil.SafeExtension(header.Filename))
	if err != nil {
		h.logger.Error("upload temp file failed", logging.Error(err))
		writeError(c, http.StatusInternalServerError, ErrorResponse{Error: "Could not store uploaded video"})
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.ReadFrom(file); err != nil {
		_ = tmp.Close()
		writeError(c, http.StatusInternalServerError, ErrorResponse{Error: "Could not store uploaded video", Details: err.Error()})
		return
	}
	if err := tmp.Close(); err != nil {
		writeError(c, http.StatusInternalServerError, ErrorResponse{Error: "Could not store uploaded video", Details: err.Error()})
		return
	}

	run, res, err := h.svc.AnalyzeVideo(c.Request.Context(), tmpPath, textutil.SanitizeLabel(header.Filename))
	if err != nil {
		h.writeRunError(c, run, err)
		return
	}
	c.Header("X-Run-ID", run.ID())
	c.JSON(http.StatusOK, VideoResponse{Run: FromSnapshot(run.Snapshot()), Result: res})
}

func (h *handlers) uploadTooLarge(c *gin.Context) {
	writeError(c, http.StatusRequestEntityTooLarge, ErrorResponse{
		Error: fmt.Sprintf("Video file is too large. Please upload a video smaller than %dMB.", h.maxUploadBytes/(1024*1024)),
	})
}

func (h *handlers) listRuns(c *gin.Context) {
	limit := defaultRunListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(c, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxRunListLimit)
	}
	list, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list runs failed", logging.Error(err))
		writeError(c, http.StatusInternalServerError, ErrorResponse{Error: "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) getRun(c *gin.Context) {
	run, err := h.svc.Describe(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(c, http.StatusNotFound, ErrorResponse{Error: "Run not found"})
			return
		}
		h.logger.Error("describe run failed", logging.Error(err))
		writeError(c, http.StatusInternalServerError, ErrorResponse{Error: "Failed to load run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health(c.Request.Context()))
}

// writeRunError maps a pipeline failure onto the HTTP contract.
func (h *handlers) writeRunError(c *gin.Context, run *pipeline.Run, err error) {
	body := ErrorResponse{Error: "Failed to analyze video", Details: err.Error()}
	if run != nil {
		body.RunID = run.ID()
	}
	status := analysis.HTTPStatus(err)

	var (
		ae *analysis.Error
		se *sampler.SamplingError
	)
	switch {
	case pipeline.IsCanceled(err):
		// client went away; the status is logged but never read
		status = 499
		body.Error = "Request canceled"
	case errors.As(err, &ae):
		body.Error = ae.Message
		body.SetupLink = ae.SetupLink
		body.Details = ae.Detail
		body.Response = ae.Raw
	case errors.Is(err, analysis.ErrNoFrames):
		body.Error = "No frames provided for analysis"
		body.Details = ""
	case errors.As(err, &se):
		status = http.StatusUnprocessableEntity
		body.Error = "Could not extract frames from video"
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
		body.Error = "Invalid request"
	}
	writeError(c, status, body)
}

// bodyTooLarge reports whether a body read failed on the size limit. The
// multipart reader does not always preserve the MaxBytesError chain, so the
// declared length is checked too.
func bodyTooLarge(err error, r *http.Request, limit int64) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	return r.ContentLength > limit
}

func writeError(c *gin.Context, status int, body ErrorResponse) {
	c.AbortWithStatusJSON(status, body)
}
