package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sitemap-watch/pkg/detector"
)

var fixedNow = time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)

func newTestNotifier(webhook string) *WebhookNotifier {
	n := NewWebhookNotifier(Config{WebhookURL: webhook, Timeout: 5 * time.Second})
	n.SetClock(func() time.Time { return fixedNow })
	return n
}

func TestDeliver_NotConfigured(t *testing.T) {
	if newTestNotifier("").Deliver(context.Background(), "hello") {
		t.Error("Expected false when webhook is not configured")
	}
}

func TestDeliver_Acknowledgements(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"legacy status code", http.StatusOK, `{"StatusCode":0,"StatusMessage":"success"}`, true},
		{"code field", http.StatusOK, `{"code":0,"msg":"success"}`, true},
		{"rejected", http.StatusOK, `{"code":19021,"msg":"sign match fail"}`, false},
		{"status code wins", http.StatusOK, `{"StatusCode":1,"code":0}`, false},
		{"no indicator", http.StatusOK, `{}`, false},
		{"not json", http.StatusOK, `ok`, false},
		{"server error", http.StatusBadGateway, `{"code":0}`, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var received webhookMessage
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				json.Unmarshal(body, &received)
				w.WriteHeader(c.status)
				w.Write([]byte(c.body))
			}))
			defer server.Close()

			got := newTestNotifier(server.URL+"/hook/secret").Deliver(context.Background(), "hello")
			if got != c.want {
				t.Errorf("Expected %v, got %v", c.want, got)
			}
			if received.MsgType != "text" || received.Content.Text != "hello" {
				t.Errorf("Unexpected payload: %+v", received)
			}
		})
	}
}

func TestDeliver_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if newTestNotifier(url).Deliver(context.Background(), "hello") {
		t.Error("Expected false for unreachable webhook")
	}
}

func TestDeliver_ContextDone(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"code":0}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if newTestNotifier(server.URL + "/hook/secret").Deliver(ctx, "hello") {
		t.Error("Expected false for a cancelled context")
	}
	if hits != 0 {
		t.Errorf("Expected no webhook request, got %d", hits)
	}
}

func TestFormatDigest_NoChanges(t *testing.T) {
	n := newTestNotifier("")
	expected := "🔍 Sitemap monitor (2024-05-01)\n📊 No new pages found"

	if got := n.FormatDigest(nil); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
	unchanged := []*detector.Diff{{Site: "a", AddedURLs: []string{}}, {Site: "b", Initial: true}}
	if got := n.FormatDigest(unchanged); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestFormatDigest_Truncation(t *testing.T) {
	keywords := make([]string, 12)
	for i := range keywords {
		keywords[i] = fmt.Sprintf("kw%02d", i)
	}
	urls := []string{"https://a.test/1", "https://a.test/2", "https://a.test/3", "https://a.test/4", "https://a.test/5"}

	diffs := []*detector.Diff{
		{Site: "alpha", AddedURLs: urls, Keywords: keywords},
		{Site: "quiet", AddedURLs: []string{}},
		{Site: "beta", AddedURLs: []string{"https://b.test/x"}, Keywords: []string{"kw00", "fresh"}},
	}

	msg := newTestNotifier("").FormatDigest(diffs)

	for _, want := range []string{
		"🌐 alpha\n📈 5 new pages\n",
		"🔑 Keywords: kw00, kw01, kw02, kw03, kw04, kw05, kw06, kw07, kw08, kw09 (+2 more)\n",
		"  • https://a.test/3\n  • ... +2 more\n",
		"🌐 beta\n📈 1 new page\n🔑 Keywords: kw00, fresh\n📝 Examples:\n  • https://b.test/x\n",
		"📊 Total: 6 new pages, 13 keywords",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected digest to contain %q, got:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "https://a.test/4") {
		t.Error("Expected only three example URLs")
	}
	if strings.Contains(msg, "quiet") {
		t.Error("Sites without new pages must be omitted")
	}
}

func TestFormatInitialAndError(t *testing.T) {
	n := newTestNotifier("")

	initial := n.FormatInitial(2)
	if !strings.HasPrefix(initial, "🔍 Sitemap monitor (2024-05-01)\n🆕 Initial snapshot saved for 2 sites") {
		t.Errorf("Unexpected initial message: %q", initial)
	}

	msg := n.FormatError(errors.New("site list unreadable"))
	if !strings.Contains(msg, "2024-05-01 23:30:00 UTC") || !strings.HasSuffix(msg, "❗ site list unreadable") {
		t.Errorf("Unexpected error message: %q", msg)
	}
}

func TestTimeZone(t *testing.T) {
	n := NewWebhookNotifier(Config{TimeZone: "Asia/Shanghai"})
	n.SetClock(func() time.Time { return fixedNow })

	if got := n.FormatInitial(1); !strings.Contains(got, "(2024-05-02)") {
		t.Errorf("Expected next-day date in Asia/Shanghai, got %q", got)
	}
}
