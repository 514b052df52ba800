// Package upstream talks to the back-office admin API over HTTP GET.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 4 << 20

var (
	// ErrEmptyURL is returned when no URL was supplied.
	ErrEmptyURL = errors.New("upstream: empty url")
	// ErrForeignHost is returned for absolute URLs outside the configured upstream.
	ErrForeignHost = errors.New("upstream: url points outside the admin api")
)

// StatusError reports a non-200 upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: GET %s: status %d", e.URL, e.Code)
}

// Recorder receives fetch outcomes. observability.Metrics implements it.
type Recorder interface {
	ObserveFetch(path, outcome string, elapsed time.Duration)
}

// Fetcher is the read side used by the panel and subscription packages.
type Fetcher interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, dest any) error
}

type exclusiveKey struct{}

// Exclusive marks ctx so GetJSON issues its own request instead of joining an
// identical one already in flight. Endpoints with side effects need it.
func Exclusive(ctx context.Context) context.Context {
	return context.WithValue(ctx, exclusiveKey{}, true)
}

func isExclusive(ctx context.Context) bool {
	v, _ := ctx.Value(exclusiveKey{}).(bool)
	return v
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Recorder   Recorder
	Logger     *slog.Logger
}

// Client issues GET requests against the admin API.
type Client struct {
	base     *url.URL
	http     *http.Client
	recorder Recorder
	logger   *slog.Logger
	group    singleflight.Group
}

// NewClient validates the base URL and builds a Client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("upstream: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream: base url %q must be absolute", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:     base,
		http:     httpClient,
		recorder: opts.Recorder,
		logger:   logger.With(slog.String("component", "upstream")),
	}, nil
}

// Resolve turns rawURL into an absolute URL on the admin API host and merges query.
func (c *Client) Resolve(rawURL string, query url.Values) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: parse url: %w", err)
	}
	target := c.base.ResolveReference(ref)
	if !strings.EqualFold(target.Scheme, c.base.Scheme) || !strings.EqualFold(target.Host, c.base.Host) {
		return nil, ErrForeignHost
	}
	if len(query) > 0 {
		merged := target.Query()
		for key, values := range query {
			merged.Del(key)
			for _, v := range values {
				merged.Add(key, v)
			}
		}
		target.RawQuery = merged.Encode()
	}
	return target, nil
}

// GetJSON performs a single GET and decodes the JSON body into dest.
// Concurrent identical requests share one round trip unless ctx is Exclusive.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, dest any) error {
	target, err := c.Resolve(rawURL, query)
	if err != nil {
		return err
	}
	if isExclusive(ctx) {
		body, err := c.fetch(ctx, target)
		if err != nil {
			return err
		}
		return c.decode(target, body, dest)
	}
	key := target.String()
	resultCh := c.group.DoChan(key, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), target)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return res.Err
		}
		body, _ := res.Val.([]byte)
		return c.decode(target, body, dest)
	}
}

func (c *Client) decode(target *url.URL, body []byte, dest any) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("upstream: decode %s: %w", target.Path, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, target *url.URL) ([]byte, error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if c.recorder != nil {
			c.recorder.ObserveFetch(target.Path, outcome, time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("upstream: GET %s: %w", target.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		outcome = "status_" + strconv.Itoa(resp.StatusCode)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		c.logger.Warn("upstream non-200", slog.String("path", target.Path), slog.Int("status", resp.StatusCode))
		return nil, &StatusError{Code: resp.StatusCode, URL: target.Path}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("upstream: read %s: %w", target.Path, err)
	}
	return body, nil
}
