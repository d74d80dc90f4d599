package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/obsidianstack/siteuptime/reporter/internal/config"
	"github.com/obsidianstack/siteuptime/reporter/internal/metrics"
	"github.com/obsidianstack/siteuptime/reporter/internal/retry"
)

const (
	sendTimeout    = 10 * time.Second
	defaultRetries = 3
)

// Message is what gets delivered for one run.
type Message struct {
	// Title is a one-line headline.
	Title string `json:"title"`
	// Text is the multi-line summary.
	Text string `json:"text"`
	// RunID identifies the archived run, if any.
	RunID string `json:"run_id,omitempty"`
	// Fields carries the headline figures for the generic http target.
	Fields map[string]any `json:"fields,omitempty"`
}

// Shipper posts messages to the configured webhooks.
type Shipper struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	policy   retry.Policy
}

// Option customises a Shipper.
type Option func(*Shipper)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Shipper) { s.client = c }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Shipper) { s.policy = p }
}

// New creates a Shipper for the given webhooks. A Shipper with no webhooks
// is valid; Ship becomes a no-op.
func New(webhooks []config.WebhookConfig, opts ...Option) *Shipper {
	s := &Shipper{
		webhooks: webhooks,
		client:   &http.Client{Timeout: sendTimeout},
		policy:   retry.DefaultPolicy(defaultRetries),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether any webhook is configured.
func (s *Shipper) Enabled() bool { return len(s.webhooks) > 0 }

// Ship delivers msg to every webhook. It returns the joined delivery errors.
func (s *Shipper) Ship(ctx context.Context, msg Message) error {
	var errs []error
	for _, wh := range s.webhooks {
		url := wh.URL()
		if url == "" {
			slog.Warn("shipper: webhook url not set, skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}

		body, err := encode(wh.Type, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("shipper: %s: %w", wh.Type, err))
			continue
		}

		err = retry.Do(ctx, s.policy, func(n int, wait time.Duration, err error) {
			metrics.IncRetry(metrics.KindWebhook)
			slog.Warn("shipper: delivery failed, will retry",
				"type", wh.Type, "retry", n, "retry_in", wait, "err", err)
		}, func(ctx context.Context) error {
			start := time.Now()
			err := s.post(ctx, url, body)
			metrics.ObserveRequest(metrics.KindWebhook, time.Since(start), err)
			return err
		})
		if err != nil {
			slog.Error("shipper: webhook delivery failed", "type", wh.Type, "err", err)
			errs = append(errs, fmt.Errorf("shipper: %s: %w", wh.Type, err))
			continue
		}
		slog.Debug("shipper: webhook delivered", "type", wh.Type, "run_id", msg.RunID)
	}
	return errors.Join(errs...)
}

// encode renders msg in the payload shape the target type expects.
func encode(typ string, msg Message) ([]byte, error) {
	var payload any
	switch typ {
	case "slack":
		payload = map[string]string{
			"text": fmt.Sprintf("*%s*\n%s", msg.Title, msg.Text),
		}
	case "teams":
		payload = map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": "00D4FF",
			"summary":    msg.Title,
			"title":      msg.Title,
			"text":       msg.Text,
		}
	case "http":
		payload = msg
	default:
		return nil, fmt.Errorf("unknown webhook type %q", typ)
	}
	return json.Marshal(payload)
}

func (s *Shipper) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
		if isPermanentStatus(resp.StatusCode) {
			return retry.Permanent(err)
		}
		return err
	}
	return nil
}

// isPermanentStatus returns true for responses that say the request itself is
// wrong and should not be retried.
func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}
