package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flowpool/internal/config"
)

const userAgent = "flowpool/0.1"

// Event identifies what happened.
type Event string

const (
	EventChainFailed   Event = "chain_failed"
	EventChainKilled   Event = "chain_killed"
	EventServiceExited Event = "service_exited"
	EventQueueError    Event = "queue_error"
	EventDaemonStopped Event = "daemon_stopped"
	EventTest          Event = "test"
)

// Payload carries the event fields used to render the message.
type Payload map[string]string

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed notifier, or a no-op one when no topic is
// configured. Chain events are dropped when chain_failures is off.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		chainFailures: cfg.Notifications.ChainFailures,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	chainFailures bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if (event == EventChainFailed || event == EventChainKilled) && !n.chainFailures {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }
	chain := get("chain")
	if owner := get("owner"); owner != "" {
		chain = fmt.Sprintf("%s (%s)", chain, owner)
	}
	switch event {
	case EventChainFailed:
		return message{
			title: "flowpool - Chain Failed",
			body:  fmt.Sprintf("Chain %s exited with status %s\nRun: %s", chain, get("exit_status"), get("run_name")),
			tags:  []string{"flowpool", "chain", "failed"},
		}, true
	case EventChainKilled:
		return message{
			title: "flowpool - Chain Killed",
			body:  fmt.Sprintf("Chain %s was killed and will be retried\nRun: %s", chain, get("run_name")),
			tags:  []string{"flowpool", "chain", "killed"},
		}, true
	case EventServiceExited:
		return message{
			title:    "flowpool - Service Exited",
			body:     fmt.Sprintf("Dependent service %s exited with status %s; the daemon is shutting down", get("service"), get("exit_status")),
			tags:     []string{"flowpool", "service", "alert"},
			priority: "high",
		}, true
	case EventQueueError:
		return message{
			title:    "flowpool - Queue Error",
			body:     "Queue query failed: " + fallback(get("error"), "unknown"),
			tags:     []string{"flowpool", "queue", "alert"},
			priority: "high",
		}, true
	case EventDaemonStopped:
		return message{
			title: "flowpool - Daemon Stopped",
			body:  fmt.Sprintf("Daemon stopped; %s running chains were killed", fallback(get("killed"), "0")),
			tags:  []string{"flowpool", "daemon", "stopped"},
		}, true
	case EventTest:
		return message{
			title:    "flowpool - Test",
			body:     "Notification system test",
			tags:     []string{"flowpool", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func fallback(value, alt string) string {
	if value == "" {
		return alt
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", msg.title)
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
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
