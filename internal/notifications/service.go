package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trafficlens/internal/config"
)

const userAgent = "trafficlens/1.0"

// Event names a notification trigger.
type Event string

const (
	EventRunSucceeded Event = "run_succeeded"
	EventRunFailed    Event = "run_failed"
	EventTest         Event = "test"
)

// Payload carries event fields. Keys used: label, runId, summary, errorKind,
// error.
type Payload map[string]string

// Service publishes events. Unknown events are ignored.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether svc actually delivers anything.
func Enabled(svc Service) bool {
	_, noop := svc.(noopService)
	return svc != nil && !noop
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

func format(event Event, payload Payload) (message, bool) {
	label := strings.TrimSpace(payload["label"])
	if label == "" {
		label = "video"
	}
	switch event {
	case EventRunSucceeded:
		body := fmt.Sprintf("🚦 Analysis complete: %s", label)
		if summary := strings.TrimSpace(payload["summary"]); summary != "" {
			body += "\n" + summary
		}
		return message{
			title: "trafficlens - Analysis Complete",
			body:  body,
			tags:  []string{"trafficlens", "analysis", "completed"},
		}, true
	case EventRunFailed:
		reason := strings.TrimSpace(payload["error"])
		if reason == "" {
			reason = "unknown error"
		}
		body := fmt.Sprintf("❌ Analysis failed: %s\n%s", label, reason)
		if kind := strings.TrimSpace(payload["errorKind"]); kind != "" {
			body += " (" + kind + ")"
		}
		return message{
			title:    "trafficlens - Analysis Failed",
			body:     body,
			tags:     []string{"trafficlens", "analysis", "error"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "trafficlens - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"trafficlens", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
