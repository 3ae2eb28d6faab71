package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	defaultDownloadTimeout = 30 * time.Second
	maxRedirects           = 5
)

var gzipMagic = []byte{0x1f, 0x8b}

// HTTPClient downloads sitemap documents over a shared fasthttp client.
type HTTPClient struct {
	client    *fasthttp.Client
	timeout   time.Duration
	userAgent string
}

// NewHTTPClient creates a client whose requests time out after timeout
// (30s when zero).
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	return &HTTPClient{
		client: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxConnsPerHost:     32,
			MaxIdleConnDuration: 90 * time.Second,
			MaxResponseBodySize: 64 << 20,
		},
		timeout:   timeout,
		userAgent: "Mozilla/5.0 (compatible; sitemap-watch/1.0; +https://www.sitemaps.org/)",
	}
}

// Download fetches targetURL and returns the (gunzipped) body. Any non-2xx
// status or transport failure is reported as *FetchError.
func (h *HTTPClient) Download(ctx context.Context, targetURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: targetURL, Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(targetURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	h.setRequestHeaders(req, targetURL)
	req.SetTimeout(h.requestTimeout(ctx))

	if err := h.client.DoRedirects(req, resp, maxRedirects); err != nil {
		return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("request failed: %w", err)}
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return nil, &FetchError{URL: targetURL, StatusCode: status}
	}

	body := resp.Body()
	if h.isGzipped(targetURL, resp) && bytes.HasPrefix(body, gzipMagic) {
		inflated, err := fasthttp.AppendGunzipBytes(nil, body)
		if err != nil {
			return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("gunzip body: %w", err)}
		}
		return inflated, nil
	}

	// resp is released on return, so the body must be copied out.
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// requestTimeout never exceeds the time left on ctx.
func (h *HTTPClient) requestTimeout(ctx context.Context) time.Duration {
	timeout := h.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

func (h *HTTPClient) setRequestHeaders(req *fasthttp.Request, targetURL string) {
	req.Header.SetUserAgent(h.userAgent)
	req.Header.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")

	if parsed, err := url.Parse(targetURL); err == nil && parsed.Host != "" {
		req.Header.Set("Referer", fmt.Sprintf("%s://%s/", parsed.Scheme, parsed.Host))
	}
}

func (h *HTTPClient) isGzipped(targetURL string, resp *fasthttp.Response) bool {
	return strings.HasSuffix(strings.ToLower(targetURL), ".gz") ||
		strings.EqualFold(string(resp.Header.ContentEncoding()), "gzip")
}
