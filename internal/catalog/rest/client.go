// Package rest is an HTTP client for the catalog REST API.
//
// Client implements core.Catalog. List calls follow cursors until the
// listing is complete. Responses are gzip-negotiated. Lists and inserts
// that fail with 429, 502, 503 or 504 or a transport error are retried with
// exponential backoff. Creates are retried only on 429, since a create that
// timed out may already exist.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/klauspost/compress/gzhttp"

	"github.com/JonMunkholm/cmingest/internal/core"
	"github.com/JonMunkholm/cmingest/internal/logging"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxRetries      = 5
	defaultPageSize        = 1000
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second

	apiKeyHeader = "api-key"
	userAgent    = "cmingest"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Project    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int // 0 selects the default, negative disables retries
	PageSize   int

	// InitialInterval is the first retry delay (default 500ms).
	InitialInterval time.Duration
	// HTTPClient overrides the default gzip-enabled client.
	HTTPClient *http.Client
}

// Client talks to one catalog project.
type Client struct {
	base       string
	apiKey     string
	http       *http.Client
	maxRetries int
	pageSize   int
	initial    time.Duration
}

var _ core.Catalog = (*Client)(nil)

// New returns a client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	if cfg.Project == "" {
		return nil, errors.New("catalog project is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid catalog base URL %q", cfg.BaseURL)
	}

	c := &Client{
		base:       u.String() + "/api/v1/projects/" + url.PathEscape(cfg.Project),
		apiKey:     cfg.APIKey,
		http:       cfg.HTTPClient,
		maxRetries: cfg.MaxRetries,
		pageSize:   cfg.PageSize,
		initial:    cfg.InitialInterval,
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	} else if cfg.MaxRetries == 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.initial <= 0 {
		c.initial = defaultInitialInterval
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.http = &http.Client{
			Timeout:   timeout,
			Transport: gzhttp.Transport(newTransport()),
		}
	}
	return c, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// APIError is a non-2xx catalog response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog responded %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth retrying.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Wire types.

type listRequest struct {
	Filter any    `json:"filter"`
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"`
}

type listResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

type itemsBody[T any] struct {
	Items []T `json:"items"`
}

type assetFilter struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

type timeSeriesFilter struct {
	NamePrefix string `json:"namePrefix,omitempty"`
}

type datapointsItem struct {
	Name       string           `json:"name"`
	Datapoints []core.Datapoint `json:"datapoints"`
}

type rowsItem struct {
	ID   int64      `json:"id"`
	Rows []core.Row `json:"rows"`
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ListAssetsByMetadata returns every asset matching the metadata filter.
func (c *Client) ListAssetsByMetadata(ctx context.Context, metadata map[string]string) ([]core.Asset, error) {
	return listAll[core.Asset](ctx, c, "/assets/list", assetFilter{Metadata: metadata})
}

// ListTimeSeriesByPrefix returns every time series whose name starts with prefix.
func (c *Client) ListTimeSeriesByPrefix(ctx context.Context, prefix string) ([]core.TimeSeries, error) {
	return listAll[core.TimeSeries](ctx, c, "/timeseries/list", timeSeriesFilter{NamePrefix: prefix})
}

// CreateTimeSeries creates one time series.
func (c *Client) CreateTimeSeries(ctx context.Context, ts core.TimeSeries) (core.TimeSeries, error) {
	var resp itemsBody[core.TimeSeries]
	if err := c.create(ctx, "/timeseries", itemsBody[core.TimeSeries]{Items: []core.TimeSeries{ts}}, &resp); err != nil {
		return core.TimeSeries{}, err
	}
	if len(resp.Items) != 1 {
		return core.TimeSeries{}, fmt.Errorf("catalog returned %d time series for one create", len(resp.Items))
	}
	return resp.Items[0], nil
}

// CreateSequence creates one sequence. The returned columns carry their ids.
func (c *Client) CreateSequence(ctx context.Context, seq core.Sequence) (core.Sequence, error) {
	var resp itemsBody[core.Sequence]
	if err := c.create(ctx, "/sequences", itemsBody[core.Sequence]{Items: []core.Sequence{seq}}, &resp); err != nil {
		return core.Sequence{}, err
	}
	if len(resp.Items) != 1 {
		return core.Sequence{}, fmt.Errorf("catalog returned %d sequences for one create", len(resp.Items))
	}
	return resp.Items[0], nil
}

// InsertSequenceRows writes rows to a sequence in one request.
func (c *Client) InsertSequenceRows(ctx context.Context, sequenceID int64, rows []core.Row) error {
	body := itemsBody[rowsItem]{Items: []rowsItem{{ID: sequenceID, Rows: rows}}}
	return c.post(ctx, "/sequences/data", body, nil)
}

// InsertDatapoints writes datapoints to the named time series in one request.
func (c *Client) InsertDatapoints(ctx context.Context, name string, points []core.Datapoint) error {
	body := itemsBody[datapointsItem]{Items: []datapointsItem{{Name: name, Datapoints: points}}}
	return c.post(ctx, "/timeseries/data", body, nil)
}

// listAll follows cursors until the listing is complete.
func listAll[T any](ctx context.Context, c *Client, path string, filter any) ([]T, error) {
	var (
		out    []T
		cursor string
		pages  int
	)
	for {
		var resp listResponse[T]
		req := listRequest{Filter: filter, Limit: c.pageSize, Cursor: cursor}
		if err := c.post(ctx, path, req, &resp); err != nil {
			return nil, err
		}
		pages++
		out = append(out, resp.Items...)
		if resp.NextCursor == "" {
			logging.FromContext(ctx).Debug("catalog list complete", "path", path, "items", len(out), "pages", pages)
			return out, nil
		}
		cursor = resp.NextCursor
	}
}

// post sends body as JSON and decodes the response into out when out is
// not nil. Transient failures are retried.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, path, body, out, nil)
}

// create is post for requests that are not idempotent.
func (c *Client) create(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, path, body, out, rateLimitedOnly)
}

// rateLimitedOnly marks every failure permanent except a 429, which the
// catalog returns before storing anything.
func rateLimitedOnly(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return err
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return err
	}
	return backoff.Permanent(err)
}

// send runs the request under the retry loop. A non-nil filter may turn an
// attempt's error permanent.
func (c *Client) send(ctx context.Context, path string, body, out any, filter func(error) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	log := logging.FromContext(ctx)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initial
	bo.MaxInterval = defaultMaxInterval

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.do(ctx, path, payload, out)
		if err != nil && filter != nil {
			err = filter(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("catalog request failed, retrying",
				"path", path, "attempt", attempt, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return nil
}

// do performs one attempt. Errors that must not be retried are wrapped with
// backoff.Permanent.
func (c *Client) do(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		if !apiErr.Retryable() {
			return backoff.Permanent(apiErr)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		apiErr.Message = body.Error.Message
	} else if msg := strings.TrimSpace(string(raw)); msg != "" {
		apiErr.Message = msg
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
