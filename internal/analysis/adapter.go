package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trafficlens/internal/logging"
	"trafficlens/internal/result"
	"trafficlens/internal/sampler"
	"trafficlens/internal/stage"
)

const (
	defaultBaseURL         = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel           = "gemini-2.0-flash"
	defaultHTTPTimeout     = 120 * time.Second
	defaultMaxPayloadBytes = 15 * 1024 * 1024
	maxResponseBytes       = 8 * 1024 * 1024
)

// Config captures the runtime settings required to talk to Gemini.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	TimeoutSeconds  int
	MaxPayloadBytes int
}

// Request is one analysis invocation.
type Request struct {
	Frames      []sampler.Frame
	SourceLabel string
}

// Adapter wraps the Gemini generateContent endpoint.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the adapter.
type Option func(*Adapter)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdapter constructs an adapter. A missing API key is not an error here;
// it surfaces as KindMissingCredential on the first Analyze call.
func NewAdapter(cfg Config, opts ...Option) *Adapter {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = defaultMaxPayloadBytes
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	a := &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Model returns the configured model name.
func (a *Adapter) Model() string {
	return a.cfg.Model
}

// Analyze sends the frames and the instruction prompt to the model in a single
// request and validates the reply. There are no retries; a failed call
// returns an *Error and never a partial result.
func (a *Adapter) Analyze(ctx context.Context, req Request) (result.AnalysisResult, error) {
	if len(req.Frames) == 0 {
		return result.AnalysisResult{}, ErrNoFrames
	}
	if a.cfg.APIKey == "" {
		return result.AnalysisResult{}, missingCredential()
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return result.AnalysisResult{}, fmt.Errorf("analysis: encode request: %w", err)
	}
	if len(body) > a.cfg.MaxPayloadBytes {
		a.logger.Warn("analysis payload exceeds limit",
			logging.String(logging.FieldEventType, "payload_too_large"),
			logging.Int("payload_bytes", len(body)),
			logging.Int("limit_bytes", a.cfg.MaxPayloadBytes),
			logging.String(logging.FieldErrorHint, "sample fewer frames or lower the JPEG quality"),
		)
		return result.AnalysisResult{}, payloadTooLarge(len(body))
	}

	text, err := a.generate(ctx, body, len(req.Frames))
	if err != nil {
		return result.AnalysisResult{}, err
	}
	return decodeResult(text)
}

func decodeResult(text string) (result.AnalysisResult, error) {
	block, ok := ExtractJSONObject(text)
	if !ok {
		return result.AnalysisResult{}, unparsableResponse(text, nil)
	}
	parsed, err := result.Parse([]byte(block))
	if err != nil {
		return result.AnalysisResult{}, unparsableResponse(text, err)
	}
	return parsed, nil
}

func (a *Adapter) generate(ctx context.Context, body []byte, frameCount int) (string, error) {
	endpoint, err := a.endpoint(":generateContent")
	if err != nil {
		return "", fmt.Errorf("analysis: build endpoint: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("analysis: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	a.logger.Info("analysis request",
		logging.String(logging.FieldEventType, "model_request"),
		logging.String("model", a.cfg.Model),
		logging.Int("frame_count", frameCount),
		logging.Int("payload_bytes", len(body)),
	)
	started := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("analysis: %w", ctxErr)
		}
		return "", transportFailure(0, redactURLError(err), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", transportFailure(resp.StatusCode, "read response: "+redactURLError(err), nil)
	}
	a.logger.Info("analysis response",
		logging.String(logging.FieldEventType, "model_response"),
		logging.Int("status", resp.StatusCode),
		logging.Duration("duration", time.Since(started)),
	)

	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return "", err
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", transportFailure(resp.StatusCode, "decode response: "+err.Error(), nil)
	}
	text := decoded.firstText()
	if strings.TrimSpace(text) == "" {
		return "", emptyResponse()
	}
	return text, nil
}

// classifyStatus maps a non-2xx reply onto an adapter error. A rejected key
// surfaces as 401 or 403 depending on the Gemini project setup.
func classifyStatus(status int, body []byte) *Error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return invalidCredential(status)
	case status == http.StatusRequestEntityTooLarge:
		return remotePayloadTooLarge(status)
	case status < 200 || status >= 300:
		return transportFailure(status, string(body), nil)
	}
	return nil
}

func (a *Adapter) endpoint(action string) (string, error) {
	u, err := url.Parse(a.cfg.BaseURL + "/models/" + url.PathEscape(a.cfg.Model) + action)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", a.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redactURLError drops the request URL, which carries the API key, from
// net/http client errors.
func redactURLError(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Op + ": " + uerr.Err.Error()
	}
	return err.Error()
}

// HealthCheck reports whether the adapter is configured with a credential.
// It does not contact the remote service.
func (a *Adapter) HealthCheck(context.Context) stage.Health {
	const name = "gemini"
	if a == nil {
		return stage.Unhealthy(name, "adapter unavailable")
	}
	if a.cfg.APIKey == "" {
		return stage.Unhealthy(name, "api key not configured (see "+SetupURL+")")
	}
	return stage.Health{Name: name, Ready: true, Detail: "model " + a.cfg.Model}
}
