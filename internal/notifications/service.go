package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"teslabox/internal/config"
)

const userAgent = "TeslaBox-Go/0.1.0"

// Event names a notification kind.
type Event string

const (
	// EventArchiveReady announces an uploaded archive and its link.
	EventArchiveReady Event = "archive_ready"
	// EventTest is sent by the CLI to verify delivery.
	EventTest Event = "test"
)

// Payload carries event fields. Keys used by the formatters: id, carName,
// eventType, angle, timestamp (epoch seconds), videoUrl, lat, lon.
type Payload map[string]any

// Service defines the notification surface exposed to the pipelines.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	// Enabled reports whether any recipient will receive published events.
	Enabled() bool
}

// NewService builds the configured transports. When neither ntfy nor Kafka is
// configured, a noop implementation is returned.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	var services []Service
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		services = append(services, newNtfyService(topic, cfg.Notifications.RequestTimeout))
	}
	if cfg.KafkaEnabled() {
		services = append(services, NewKafkaPublisher(cfg, logger))
	}
	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		return services[0]
	default:
		return Fanout(services...)
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func newNtfyService(topic string, timeoutSeconds int) *ntfyService {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *ntfyService) Enabled() bool { return n != nil && n.client != nil }

func (n *ntfyService) Publish(ctx context.Context, event Event, fields Payload) error {
	data, ok := format(event, fields)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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
	if data.click != "" {
		req.Header.Set("Click", data.click)
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

type fanout []Service

// Fanout publishes every event to each enabled service. All services are
// attempted; their errors are joined.
func Fanout(services ...Service) Service {
	return fanout(services)
}

func (f fanout) Enabled() bool {
	for _, svc := range f {
		if svc != nil && svc.Enabled() {
			return true
		}
	}
	return false
}

func (f fanout) Publish(ctx context.Context, event Event, fields Payload) error {
	var errs []error
	for _, svc := range f {
		if svc == nil || !svc.Enabled() {
			continue
		}
		if err := svc.Publish(ctx, event, fields); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases transports that hold connections, such as the Kafka writer.
func Close(svc Service) error {
	switch v := svc.(type) {
	case fanout:
		var errs []error
		for _, inner := range v {
			errs = append(errs, Close(inner))
		}
		return errors.Join(errs...)
	case io.Closer:
		return v.Close()
	}
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
func (noopService) Enabled() bool                                 { return false }

// NewNoop returns a Service that drops every event.
func NewNoop() Service { return noopService{} }
