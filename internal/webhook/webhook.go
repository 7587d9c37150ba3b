package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/config"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/logging"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/metrics"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// Request headers
const (
	HeaderEvent     = "X-HDMSP-Event"
	HeaderDelivery  = "X-HDMSP-Delivery"
	HeaderSignature = "X-HDMSP-Signature"
)

const maxResponseBody = 4096

// Payload is the JSON body posted for every event.
type Payload struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      models.JobEvent `json:"data"`
}

// Notifier posts job events to every configured URL. Each event is
// attempted once per URL in the background; failures are logged.
type Notifier struct {
	client *http.Client
	urls   []string
	secret string
	events map[string]bool
	logger *logging.Logger
	wg     sync.WaitGroup
}

// NewNotifier creates a new webhook notifier
func NewNotifier(cfg config.WebhookConfig, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	wanted := make(map[string]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		wanted[e] = true
	}

	return &Notifier{
		client: &http.Client{Timeout: timeout},
		urls:   cfg.URLs,
		secret: cfg.Secret,
		events: wanted,
		logger: logger,
	}
}

// Wants reports whether events of this type are delivered. An empty
// event list means every type except progress.
func (n *Notifier) Wants(eventType string) bool {
	if len(n.events) == 0 {
		return eventType != models.JobEventProgress
	}
	return n.events[eventType]
}

// Publish queues evt for delivery and returns without waiting.
func (n *Notifier) Publish(ctx context.Context, evt models.JobEvent) error {
	if !n.Wants(evt.Type) || len(n.urls) == 0 {
		return nil
	}

	payload, err := json.Marshal(Payload{
		Event:     evt.Type,
		Timestamp: time.Now(),
		Data:      evt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Deliveries outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)
	for _, url := range n.urls {
		n.wg.Add(1)
		go func(url string) {
			defer n.wg.Done()
			if err := n.deliver(ctx, url, evt, payload); err != nil {
				metrics.RecordError("webhook", "delivery_failed")
				n.logger.WithJobID(evt.JobID).WithError(err).WithField("url", url).Warn("Webhook delivery failed")
			}
		}(url)
	}
	return nil
}

// deliver attempts to deliver a webhook
func (n *Notifier) deliver(ctx context.Context, url string, evt models.JobEvent, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "HDMSP-Webhook/1.0")
	req.Header.Set(HeaderEvent, evt.Type)
	req.Header.Set(HeaderDelivery, uuid.New().String())

	// Add HMAC signature if secret is configured
	if n.secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	n.logger.WithJobID(evt.JobID).WithField("url", url).Debug("Webhook delivered")
	return nil
}

// Close waits for in-flight deliveries.
func (n *Notifier) Close() error {
	n.wg.Wait()
	return nil
}

// Sign returns the HMAC-SHA256 signature of payload as "sha256=<hex>".
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
