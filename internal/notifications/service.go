package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lectern/internal/config"
)

const userAgent = "Lectern-Go/0.1.0"

// Event identifies a notification category.
type Event string

const (
	// EventReviewNeeded fires when human review is waiting: pending
	// mappings after a mapping pass, or validated items awaiting approval.
	EventReviewNeeded Event = "review_needed"
	// EventPipelineCompleted fires when a document pipeline settles as
	// completed.
	EventPipelineCompleted Event = "pipeline_completed"
	// EventPipelineFailed fires when a pipeline is marked failed.
	EventPipelineFailed Event = "pipeline_failed"
	// EventDaemonError fires on daemon-level failures such as a worker
	// tick error.
	EventDaemonError Event = "daemon_error"
	// EventTest is the manual notification test, never suppressed.
	EventTest Event = "test"
)

// Payload carries event-specific values used to compose the message.
type Payload map[string]any

// Service is the notification surface handed to the daemon and workflow
// components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when a topic is
// configured, and a noop implementation otherwise.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		review:     cfg.Notifications.Review,
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	review     bool
	completion bool
	errors     bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := compose(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventReviewNeeded:
		return n.review
	case EventPipelineCompleted:
		return n.completion
	case EventPipelineFailed, EventDaemonError:
		return n.errors
	case EventTest:
		return true
	default:
		return false
	}
}

func compose(event Event, payload Payload) (message, bool) {
	switch event {
	case EventReviewNeeded:
		kind := stringValue(payload, "kind")
		if kind == "" {
			kind = "items"
		}
		count := intValue(payload, "count")
		body := fmt.Sprintf("Review needed: %d %s awaiting review", count, kind)
		if doc := stringValue(payload, "document"); doc != "" {
			body = fmt.Sprintf("Review needed: %d %s for %s", count, kind, doc)
		}
		return message{
			title: "Lectern - Review Needed",
			body:  body,
			tags:  []string{"lectern", "review", kind},
		}, true

	case EventPipelineCompleted:
		doc := stringValue(payload, "document")
		return message{
			title:    "Lectern - Pipeline Complete",
			body:     fmt.Sprintf("Pipeline complete: %s", doc),
			tags:     []string{"lectern", "pipeline", "completed"},
			priority: "high",
		}, true

	case EventPipelineFailed:
		doc := stringValue(payload, "document")
		body := fmt.Sprintf("Pipeline failed: %s", doc)
		if errText := errorValue(payload); errText != "" {
			body = fmt.Sprintf("%s: %s", body, errText)
		}
		return message{
			title:    "Lectern - Pipeline Failed",
			body:     body,
			tags:     []string{"lectern", "pipeline", "failed"},
			priority: "high",
		}, true

	case EventDaemonError:
		var builder strings.Builder
		builder.WriteString("Error")
		if contextLabel := stringValue(payload, "context"); contextLabel != "" {
			builder.WriteString(" with ")
			builder.WriteString(contextLabel)
		}
		builder.WriteString(": ")
		if errText := errorValue(payload); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Lectern - Error",
			body:     builder.String(),
			tags:     []string{"lectern", "error", "alert"},
			priority: "high",
		}, true

	case EventTest:
		return message{
			title:    "Lectern - Test",
			body:     "Notification system test",
			tags:     []string{"lectern", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func stringValue(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intValue(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func errorValue(payload Payload) string {
	if payload == nil {
		return ""
	}
	switch v := payload["error"].(type) {
	case error:
		return strings.TrimSpace(v.Error())
	case string:
		return strings.TrimSpace(v)
	}
	return ""
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

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
