package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"allsky/internal/config"
	"allsky/internal/logging"
	"allsky/internal/queue"
)

const userAgent = "allsky-go/0.1.0"

// Notification is one operator-visible message. While an unacknowledged,
// unexpired notification with the same Category and Key exists, a new one is
// dropped.
type Notification struct {
	Category queue.NotificationCategory
	Key      string
	Message  string
	Expiry   time.Duration
}

// Service records and delivers notifications.
type Service interface {
	Notify(ctx context.Context, n Notification) error
}

// Store is the persistence a Service writes through.
type Store interface {
	AddNotification(ctx context.Context, category queue.NotificationCategory, key, message string, expiry time.Duration) (bool, error)
}

// NewService persists notifications through store and, when an ntfy topic is
// configured, also pushes each newly recorded one. With neither a store nor
// a topic it returns a noop.
func NewService(cfg *config.Config, store Store, logger *slog.Logger) Service {
	topic := ""
	timeout := 10 * time.Second
	if cfg != nil {
		topic = strings.TrimSpace(cfg.Notifications.NtfyTopic)
		if t := cfg.NotifyTimeout(); t > 0 {
			timeout = t
		}
	}
	if store == nil && topic == "" {
		return noopService{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	svc := &service{
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "notifications")),
	}
	if topic != "" {
		svc.push = &ntfyClient{
			endpoint: topic,
			client:   &http.Client{Timeout: timeout},
		}
	}
	return svc
}

type service struct {
	store  Store
	push   *ntfyClient
	logger *slog.Logger
}

func (s *service) Notify(ctx context.Context, n Notification) error {
	n.Key = strings.TrimSpace(n.Key)
	if n.Key == "" {
		return fmt.Errorf("notification key is required")
	}
	if n.Category == "" {
		n.Category = queue.CategoryGeneral
	}

	if s.store != nil {
		added, err := s.store.AddNotification(ctx, n.Category, n.Key, n.Message, n.Expiry)
		if err != nil {
			return fmt.Errorf("record notification %s/%s: %w", n.Category, n.Key, err)
		}
		if !added {
			s.logger.Debug("notification already active",
				logging.String("category", string(n.Category)),
				logging.String("key", n.Key),
			)
			return nil
		}
	}

	if s.push != nil {
		if err := s.push.send(ctx, pushPayload(n)); err != nil {
			s.logger.Warn("ntfy delivery failed",
				logging.String("key", n.Key),
				logging.Error(err),
				logging.String(logging.FieldEventType, "notification_push_failed"),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network reachability"),
				logging.String(logging.FieldImpact, "notification recorded locally only"),
			)
		}
	}
	return nil
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

func pushPayload(n Notification) payload {
	data := payload{
		title:   fmt.Sprintf("Allsky - %s", titleForCategory(n.Category)),
		message: n.Message,
		tags:    []string{"allsky", strings.ToLower(string(n.Category)), n.Key},
	}
	switch n.Category {
	case queue.CategoryWorker:
		data.priority = "high"
	case queue.CategoryGeneral:
		data.priority = "low"
	}
	return data
}

func titleForCategory(category queue.NotificationCategory) string {
	switch category {
	case queue.CategoryState:
		return "State"
	case queue.CategoryWorker:
		return "Worker"
	default:
		return "Notice"
	}
}

type ntfyClient struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyClient) send(ctx context.Context, data payload) error {
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

func (noopService) Notify(context.Context, Notification) error { return nil }

// NewNoop returns a Service that drops everything.
func NewNoop() Service { return noopService{} }
