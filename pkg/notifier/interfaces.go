package notifier

import (
	"context"
	"time"

	"sitemap-watch/pkg/detector"
)

// Notifier formats cycle results and delivers them to a chat webhook.
type Notifier interface {
	FormatDigest(diffs []*detector.Diff) string
	FormatInitial(count int) string
	FormatError(err error) string
	Deliver(ctx context.Context, message string) bool
}

type Config struct {
	WebhookURL  string        `mapstructure:"webhook_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxKeywords int           `mapstructure:"max_keywords"`
	TimeZone    string        `mapstructure:"time_zone"`
}

// webhookMessage is the fixed text envelope accepted by the webhook.
type webhookMessage struct {
	MsgType string         `json:"msg_type"`
	Content webhookContent `json:"content"`
}

type webhookContent struct {
	Text string `json:"text"`
}

// webhookResponse covers both acknowledgement shapes: legacy StatusCode and
// the newer code/msg pair.
type webhookResponse struct {
	StatusCode    *int   `json:"StatusCode"`
	StatusMessage string `json:"StatusMessage"`
	Code          *int   `json:"code"`
	Msg           string `json:"msg"`
}

func (r *webhookResponse) ok() bool {
	if r.StatusCode != nil {
		return *r.StatusCode == 0
	}
	return r.Code != nil && *r.Code == 0
}

func (r *webhookResponse) message() string {
	if r.StatusMessage != "" {
		return r.StatusMessage
	}
	return r.Msg
}
