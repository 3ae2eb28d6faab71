package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"sitemap-watch/pkg/logger"
)

const (
	DefaultKVBaseURL = "https://api.cloudflare.com/client/v4"
	kvKeyPrefix      = "sitemap:"
	kvListLimit      = 1000
)

// KVStore persists snapshots in a Cloudflare Workers KV namespace using the
// REST API. Keys have the form sitemap:<site>:<period>.
type KVStore struct {
	config KVConfig
	client *fasthttp.Client
	log    *logger.Logger
}

type kvListResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result []struct {
		Name string `json:"name"`
	} `json:"result"`
	ResultInfo struct {
		Cursor string `json:"cursor"`
		Count  int    `json:"count"`
	} `json:"result_info"`
}

func NewKVStore(config KVConfig) (*KVStore, error) {
	if config.AccountID == "" || config.NamespaceID == "" || config.APIToken == "" {
		return nil, fmt.Errorf("kv store requires account id, namespace id and api token")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultKVBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &KVStore{
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxConnsPerHost:     16,
			MaxIdleConnDuration: 90 * time.Second,
		},
		log: logger.GetLogger().WithField("component", "kv_store"),
	}, nil
}

func kvKey(siteKey, period string) string {
	return kvKeyPrefix + siteKey + ":" + period
}

// parseKVKey splits sitemap:<site>:<period>.
func parseKVKey(name string) (siteKey, period string, ok bool) {
	if !strings.HasPrefix(name, kvKeyPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(name, kvKeyPrefix), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (s *KVStore) namespaceURL() string {
	return fmt.Sprintf("%s/accounts/%s/storage/kv/namespaces/%s",
		s.config.BaseURL, url.PathEscape(s.config.AccountID), url.PathEscape(s.config.NamespaceID))
}

func (s *KVStore) valueURL(key string) string {
	return s.namespaceURL() + "/values/" + url.PathEscape(key)
}

// do executes one request and returns the status code and a copy of the body.
func (s *KVStore) do(ctx context.Context, method, uri string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	timeout := s.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if err := s.client.DoTimeout(req, resp, timeout); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}

func (s *KVStore) Save(ctx context.Context, snapshot *Snapshot) error {
	key := kvKey(NormalizeSite(snapshot.Site), snapshot.TimePeriod)
	data, err := json.Marshal(snapshot)
	if err != nil {
		return &StoreError{Backend: "kv", Op: "save", Key: key, Err: err}
	}

	status, body, err := s.do(ctx, fasthttp.MethodPut, s.valueURL(key), data)
	if err != nil {
		return &StoreError{Backend: "kv", Op: "save", Key: key, Err: err}
	}
	if status < 200 || status > 299 {
		return &StoreError{Backend: "kv", Op: "save", Key: key, Err: fmt.Errorf("HTTP %d: %s", status, truncate(body, 200))}
	}
	return nil
}

func (s *KVStore) Load(ctx context.Context, site, timePeriod string) (*Snapshot, error) {
	return s.get(ctx, kvKey(NormalizeSite(site), timePeriod))
}

func (s *KVStore) get(ctx context.Context, key string) (*Snapshot, error) {
	status, body, err := s.do(ctx, fasthttp.MethodGet, s.valueURL(key), nil)
	if err != nil {
		return nil, &StoreError{Backend: "kv", Op: "load", Key: key, Err: err}
	}
	if status == fasthttp.StatusNotFound {
		return nil, nil
	}
	if status != fasthttp.StatusOK {
		return nil, &StoreError{Backend: "kv", Op: "load", Key: key, Err: fmt.Errorf("HTTP %d: %s", status, truncate(body, 200))}
	}

	var snapshot Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, &StoreError{Backend: "kv", Op: "load", Key: key, Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	return &snapshot, nil
}

func (s *KVStore) LoadMostRecentBefore(ctx context.Context, site, excludingPeriod string) (*Snapshot, error) {
	periods, err := s.ListTimePeriods(ctx, site)
	if err != nil {
		return nil, err
	}
	best, ok := mostRecentExcept(periods, excludingPeriod)
	if !ok {
		return nil, nil
	}
	return s.Load(ctx, site, best)
}

func (s *KVStore) ListTimePeriods(ctx context.Context, site string) ([]string, error) {
	siteKey := NormalizeSite(site)
	names, err := s.listKeys(ctx, kvKeyPrefix+siteKey+":")
	if err != nil {
		return nil, err
	}

	periods := make([]string, 0, len(names))
	for _, name := range names {
		if k, p, ok := parseKVKey(name); ok && k == siteKey {
			periods = append(periods, p)
		}
	}
	sortPeriodsDesc(periods)
	return periods, nil
}

func (s *KVStore) ListSites(ctx context.Context) ([]string, error) {
	names, err := s.listKeys(ctx, kvKeyPrefix)
	if err != nil {
		return nil, err
	}

	sites := make([]string, 0, len(names))
	for _, name := range names {
		if k, _, ok := parseKVKey(name); ok {
			sites = append(sites, k)
		}
	}
	return dedupeSorted(sites), nil
}

func (s *KVStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	names, err := s.listKeys(ctx, kvKeyPrefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, name := range names {
		_, period, ok := parseKVKey(name)
		if !ok || !periodBefore(period, cutoff) {
			continue
		}
		status, _, err := s.do(ctx, fasthttp.MethodDelete, s.valueURL(name), nil)
		if err != nil || (status != fasthttp.StatusOK && status != fasthttp.StatusNotFound) {
			s.log.WithFields(map[string]interface{}{
				"key":    name,
				"status": status,
			}).Warn("Failed to delete expired snapshot")
			continue
		}
		deleted++
	}
	return deleted, nil
}

// listKeys follows the cursor until the listing is exhausted.
func (s *KVStore) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var (
		names  []string
		cursor string
	)
	for {
		query := url.Values{}
		query.Set("prefix", prefix)
		query.Set("limit", fmt.Sprintf("%d", kvListLimit))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		status, body, err := s.do(ctx, fasthttp.MethodGet, s.namespaceURL()+"/keys?"+query.Encode(), nil)
		if err != nil {
			return nil, &StoreError{Backend: "kv", Op: "list", Key: prefix, Err: err}
		}
		if status != fasthttp.StatusOK {
			return nil, &StoreError{Backend: "kv", Op: "list", Key: prefix, Err: fmt.Errorf("HTTP %d: %s", status, truncate(body, 200))}
		}

		var page kvListResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &StoreError{Backend: "kv", Op: "list", Key: prefix, Err: fmt.Errorf("decode key list: %w", err)}
		}
		if !page.Success {
			msg := "unsuccessful response"
			if len(page.Errors) > 0 {
				msg = page.Errors[0].Message
			}
			return nil, &StoreError{Backend: "kv", Op: "list", Key: prefix, Err: fmt.Errorf("%s", msg)}
		}

		for _, r := range page.Result {
			names = append(names, r.Name)
		}
		if page.ResultInfo.Cursor == "" || len(page.Result) == 0 {
			return names, nil
		}
		cursor = page.ResultInfo.Cursor
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
