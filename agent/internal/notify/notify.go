package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shotspool/shotspool/agent/internal/config"
)

// Kind names a class of spool event. Cooldown is tracked per kind.
type Kind string

const (
	KindEviction  Kind = "spool_eviction"
	KindRetention Kind = "spool_retention"
	KindIOFailure Kind = "spool_io_failure"
)

// Event is one notification.
type Event struct {
	Kind     Kind      `json:"kind"`
	Severity string    `json:"severity"` // "warning" | "critical"
	SourceID string    `json:"source_id"`
	Message  string    `json:"message"`
	Count    int       `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

// Notifier fans events out to the configured webhooks. It is safe for
// concurrent use. A Notifier with no webhooks drops every event.
type Notifier struct {
	client *resty.Client

	mu       sync.Mutex
	webhooks []config.WebhookConfig
	cooldown time.Duration
	sourceID string
	lastSent map[Kind]time.Time
	now      func() time.Time

	wg sync.WaitGroup
}

// New creates a Notifier for cfg. sourceID is stamped on every event.
func New(cfg config.NotifyConfig, sourceID string) *Notifier {
	n := &Notifier{
		client:   resty.New().SetTimeout(10 * time.Second),
		lastSent: make(map[Kind]time.Time),
		now:      time.Now,
	}
	n.Configure(cfg, sourceID)
	return n
}

// Configure replaces the webhook targets, cooldown and source id. Cooldown
// history and queued deliveries carry over.
func (n *Notifier) Configure(cfg config.NotifyConfig, sourceID string) {
	if n == nil {
		return
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = config.DefaultNotifyCooldown
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.webhooks = append([]config.WebhookConfig(nil), cfg.Webhooks...)
	n.cooldown = cooldown
	n.sourceID = sourceID
}

// Notify queues ev for delivery unless an event of the same kind was sent
// within the cooldown. It reports whether the event was queued.
func (n *Notifier) Notify(ev Event) bool {
	if n == nil {
		return false
	}

	now := n.now()
	n.mu.Lock()
	webhooks, sourceID := n.webhooks, n.sourceID
	if len(webhooks) == 0 {
		n.mu.Unlock()
		return false
	}
	if last, ok := n.lastSent[ev.Kind]; ok && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		slog.Debug("notify: suppressed by cooldown", "kind", ev.Kind)
		return false
	}
	n.lastSent[ev.Kind] = now
	n.mu.Unlock()

	if ev.At.IsZero() {
		ev.At = now.UTC()
	}
	if ev.SourceID == "" {
		ev.SourceID = sourceID
	}
	if ev.Severity == "" {
		ev.Severity = "warning"
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(webhooks, ev)
	}()
	return true
}

// Wait blocks until every queued delivery has finished.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) deliver(webhooks []config.WebhookConfig, ev Event) {
	for _, wh := range webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body any
		switch wh.Type {
		case "slack":
			body = map[string]string{
				"text": fmt.Sprintf("*%s* %s", severityLabel(ev.Severity), n.text(ev)),
			}
		case "teams":
			body = map[string]any{
				"@type":      "MessageCard",
				"@context":   "http://schema.org/extensions",
				"themeColor": severityColor(ev.Severity),
				"summary":    string(ev.Kind),
				"title":      fmt.Sprintf("shotspool: %s", ev.Kind),
				"text":       n.text(ev),
			}
		case "http":
			body = map[string]any{"event": ev}
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := n.post(url, body); err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"kind", ev.Kind,
				"err", err,
			)
			continue
		}
		slog.Debug("notify: webhook delivered", "type", wh.Type, "kind", ev.Kind)
	}
}

func (n *Notifier) text(ev Event) string {
	return fmt.Sprintf("%s on %s: %s", ev.Kind, ev.SourceID, ev.Message)
}

func (n *Notifier) post(url string, body any) error {
	resp, err := n.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode())
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
