package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/valyala/fasthttp"
	"sitemap-watch/pkg/logger"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxKeywords = 10
	exampleURLCount    = 3
)

// WebhookNotifier posts text messages to a chat webhook over fasthttp.
type WebhookNotifier struct {
	config   Config
	client   *fasthttp.Client
	location *time.Location
	now      func() time.Time
	log      *logger.Logger
	security *logger.SecurityLogger
}

func NewWebhookNotifier(config Config) *WebhookNotifier {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxKeywords <= 0 {
		config.MaxKeywords = defaultMaxKeywords
	}

	log := logger.GetLogger().WithField("component", "webhook_notifier")

	location := time.UTC
	if config.TimeZone != "" {
		if loc, err := time.LoadLocation(config.TimeZone); err == nil {
			location = loc
		} else {
			log.WithError(err).WithField("time_zone", config.TimeZone).Warn("Unknown time zone, using UTC")
		}
	}

	return &WebhookNotifier{
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 90 * time.Second,
		},
		location: location,
		now:      time.Now,
		log:      log,
		security: logger.NewSecurityLogger(log),
	}
}

// SetClock overrides the time source used in message headers.
func (n *WebhookNotifier) SetClock(now func() time.Time) {
	n.now = now
}

// Configured reports whether a webhook URL is set.
func (n *WebhookNotifier) Configured() bool {
	return n.config.WebhookURL != ""
}

// Deliver posts message and reports whether the webhook acknowledged it.
// A missing webhook URL is not an error: it is logged and false is returned.
func (n *WebhookNotifier) Deliver(ctx context.Context, message string) bool {
	if !n.Configured() {
		n.log.Warn("Webhook URL not configured, skipping notification")
		return false
	}
	if err := ctx.Err(); err != nil {
		n.security.SafeWarn("Cycle context done, skipping notification", map[string]interface{}{
			"webhook": n.config.WebhookURL,
			"reason":  err.Error(),
		})
		return false
	}

	if err := n.post(ctx, message); err != nil {
		n.security.SafeError("Notification delivery failed", err, map[string]interface{}{
			"webhook": n.config.WebhookURL,
		})
		return false
	}

	n.security.SafeInfo("Notification delivered", map[string]interface{}{
		"webhook":      n.config.WebhookURL,
		"message_size": len(message),
	})
	return true
}

func (n *WebhookNotifier) post(ctx context.Context, message string) error {
	payload, err := json.Marshal(webhookMessage{
		MsgType: "text",
		Content: webhookContent{Text: message},
	})
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to marshal message: %w", err)}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.config.WebhookURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	timeout := n.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Err: err}
	}

	if err := n.client.DoTimeout(req, resp, timeout); err != nil {
		return &DeliveryError{Err: fmt.Errorf("request failed: %w", err)}
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return &DeliveryError{StatusCode: status, Reason: truncate(string(resp.Body()), 200)}
	}

	var ack webhookResponse
	if err := json.Unmarshal(resp.Body(), &ack); err != nil {
		return &DeliveryError{StatusCode: status, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if !ack.ok() {
		return &DeliveryError{StatusCode: status, Reason: fmt.Sprintf("webhook rejected message: %s", ack.message())}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
