package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tottales/internal/config"
)

const userAgent = "TotTales-Go/0.1.0"

// Event identifies a notification-worthy pipeline moment.
type Event string

const (
	EventStoryCompleted     Event = "story-completed"
	EventStoryFailed        Event = "story-failed"
	EventRegenerationFailed Event = "regeneration-failed"
	EventTest               Event = "test"
)

// Payload carries event-specific fields referenced by the formatter.
type Payload map[string]string

// Service publishes pipeline events to the configured channel.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notifier backed by ntfy when configured. When no topic
// is configured, a noop implementation is returned.
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		stories:  cfg.Notifications.Stories,
		errors:   cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	stories  bool
	errors   bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	return n.send(ctx, formatMessage(event, payload))
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventStoryCompleted:
		return n.stories
	case EventStoryFailed, EventRegenerationFailed:
		return n.errors
	default:
		return true
	}
}

func formatMessage(event Event, payload Payload) message {
	title := strings.TrimSpace(payload["title"])
	child := strings.TrimSpace(payload["child"])
	reason := strings.TrimSpace(payload["reason"])

	switch event {
	case EventStoryCompleted:
		return message{
			title: "TotTales - Story Ready",
			body:  fmt.Sprintf("📖 %q is ready for %s", title, orUnknown(child)),
			tags:  []string{"tottales", "story", "completed"},
		}
	case EventStoryFailed:
		body := fmt.Sprintf("Story generation failed for %s", orUnknown(child))
		if reason != "" {
			body += ": " + reason
		}
		return message{
			title:    "TotTales - Story Failed",
			body:     body,
			tags:     []string{"tottales", "story", "failed"},
			priority: "high",
		}
	case EventRegenerationFailed:
		body := fmt.Sprintf("Page %s regeneration failed for %q", payload["page"], title)
		if reason != "" {
			body += ": " + reason
		}
		return message{
			title:    "TotTales - Regeneration Failed",
			body:     body,
			tags:     []string{"tottales", "regenerate", "failed"},
			priority: "high",
		}
	case EventTest:
		return message{
			title:    "TotTales - Test",
			body:     "Notification system test",
			tags:     []string{"tottales", "test"},
			priority: "low",
		}
	default:
		return message{
			title: "TotTales",
			body:  string(event),
			tags:  []string{"tottales"},
		}
	}
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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
