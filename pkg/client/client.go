// Package client talks to a running procview server.
package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	prom "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/voluzi/procview/pkg/api"
	"github.com/voluzi/procview/pkg/sysinfo"
)

const DefaultTimeout = 30 * time.Second

// pollMargin is added on top of the server side wait of a long poll so the
// 204 arrives before the client gives up.
const pollMargin = 10 * time.Second

// Client provides methods to interact with the procview HTTP server.
type Client struct {
	url        string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which times out after DefaultTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// NewClient creates a client for address, which is either host:port or a
// full http(s) URL.
func NewClient(address string, opts ...Option) *Client {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	c := &Client{
		url:        strings.TrimSuffix(address, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the base URL of the server.
func (c *Client) URL() string {
	return c.url
}

// get performs a GET request and returns the status and body. Any status
// not listed in validStatuses is turned into an error.
func (c *Client) get(ctx context.Context, endpoint string, validStatuses ...int) (int, []byte, error) {
	return c.do(ctx, c.httpClient, endpoint, validStatuses...)
}

func (c *Client) do(ctx context.Context, hc *http.Client, endpoint string, validStatuses ...int) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+endpoint, nil)
	if err != nil {
		return 0, nil, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.WrapIf(err, "reading response body")
	}

	for _, status := range validStatuses {
		if resp.StatusCode == status {
			return resp.StatusCode, body, nil
		}
	}
	return resp.StatusCode, nil, errors.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (c *Client) getJSON(ctx context.Context, endpoint string, target interface{}) error {
	_, body, err := c.get(ctx, endpoint, http.StatusOK)
	if err != nil {
		return err
	}
	return errors.WrapIff(json.Unmarshal(body, target), "decoding %s", endpoint)
}

// Health returns nil when the server is alive.
func (c *Client) Health(ctx context.Context) error {
	_, _, err := c.get(ctx, "/health", http.StatusOK)
	return err
}

// Ready reports whether the server has produced its first snapshot.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	status, _, err := c.get(ctx, "/ready", http.StatusOK, http.StatusServiceUnavailable)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// Current returns the latest snapshot, or nil if none was taken yet.
func (c *Client) Current(ctx context.Context) (*sysinfo.Snapshot, error) {
	status, body, err := c.get(ctx, "/api/snapshot", http.StatusOK, http.StatusNoContent)
	if err != nil || status == http.StatusNoContent {
		return nil, err
	}
	var snap sysinfo.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, errors.WrapIf(err, "decoding snapshot")
	}
	return &snap, nil
}

// History returns every retained snapshot.
func (c *Client) History(ctx context.Context) (*api.History, error) {
	var h api.History
	if err := c.getJSON(ctx, "/api/history", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// HistorySince returns the snapshots after since, flagging a gap if some were
// already evicted.
func (c *Client) HistorySince(ctx context.Context, since uint64) (*api.History, error) {
	var h api.History
	if err := c.getJSON(ctx, "/api/history?since="+strconv.FormatUint(since, 10), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Poll waits up to timeout for snapshots after the given sequence. It returns
// nil when the wait timed out.
func (c *Client) Poll(ctx context.Context, after uint64, timeout time.Duration) (*api.History, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	q.Set("timeout", timeout.String())

	// The configured client timeout may be shorter than the wait itself.
	hc := c.httpClient
	if hc.Timeout > 0 && hc.Timeout < timeout+pollMargin {
		pc := *hc
		pc.Timeout = timeout + pollMargin
		hc = &pc
	}

	status, body, err := c.do(ctx, hc, "/api/poll?"+q.Encode(), http.StatusOK, http.StatusNoContent)
	if err != nil || status == http.StatusNoContent {
		return nil, err
	}
	var h api.History
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, errors.WrapIf(err, "decoding poll response")
	}
	return &h, nil
}

// Stats returns averages over the given window.
func (c *Client) Stats(ctx context.Context, window time.Duration) (*api.Stats, error) {
	var stats api.Stats
	if err := c.getJSON(ctx, "/api/stats?window="+url.QueryEscape(window.String()), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) Events(ctx context.Context) (*api.Events, error) {
	var ev api.Events
	if err := c.getJSON(ctx, "/api/events", &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// MetricFamilies scrapes /metrics.
func (c *Client) MetricFamilies(ctx context.Context) (map[string]*prom.MetricFamily, error) {
	_, body, err := c.get(ctx, "/metrics", http.StatusOK)
	if err != nil {
		return nil, err
	}
	parser := expfmt.TextParser{}
	fams, err := parser.TextToMetricFamilies(bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapIf(err, "parsing metrics")
	}
	return fams, nil
}
