// Package miniapp is a client for the Mini App backend: invoice creation
// for paid spins and the leaderboard.
//
// Every request carries the Telegram init data of the current session in
// the X-Telegram-Init-Data header; the backend validates it.
//
//	client := miniapp.NewClient(miniapp.Config{
//	    BaseURL:  "https://api.example.com",
//	    InitData: initData,
//	})
//
//	link, err := client.CreateInvoice(ctx, 25)
package miniapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/exp/slog"

	"github.com/MJE43/stargift-miniapp/internal/lib/logger/sl"
)

const HeaderInitData = "X-Telegram-Init-Data"

// Config holds configuration for the backend client.
type Config struct {
	// BaseURL is prefixed to every path. Empty means paths are used as-is,
	// which only works with an HTTPClient whose transport resolves them.
	BaseURL string

	// InitData is the raw Telegram init data for the session.
	InitData string

	// MaxRetries caps retries of idempotent reads. Defaults to 3 if zero;
	// negative disables retries.
	MaxRetries int

	// BaseRetryDelay is the first backoff step. Defaults to 500ms.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps a single backoff step. Defaults to 5s.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a custom HTTP client. Defaults to a
	// client with a 15s timeout.
	HTTPClient *http.Client

	UserAgent string

	Logger *slog.Logger
}

// Client talks to the Mini App backend.
type Client struct {
	config Config
	http   *http.Client
	log    *slog.Logger

	mu       sync.RWMutex
	initData string
}

func NewClient(cfg Config) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		config:   cfg,
		http:     httpClient,
		log:      sl.OrDiscard(cfg.Logger).With(slog.String("component", "miniapp")),
		initData: cfg.InitData,
	}
}

// SetInitData replaces the session auth context (thread-safe).
func (c *Client) SetInitData(initData string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initData = initData
}

// InitData returns the current auth context (thread-safe).
func (c *Client) InitData() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initData
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// doRequest sends one GET and decodes the JSON response into out. An
// empty successful body leaves out untouched.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values, initData string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path, query), nil)
	if err != nil {
		return fmt.Errorf("miniapp: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if initData != "" {
		req.Header.Set(HeaderInitData, initData)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("miniapp: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("miniapp: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp.StatusCode, raw)
	}
	if len(strings.TrimSpace(string(raw))) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("miniapp: invalid response JSON: %w", err)
	}
	return nil
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(c.config.BaseRetryDelay)
	b = retry.WithCappedDuration(c.config.MaxRetryDelay, b)
	retries := c.config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), b)
}

// doRequestWithRetry retries transport failures and retryable HTTP errors.
func (c *Client) doRequestWithRetry(ctx context.Context, path string, query url.Values, initData string, out any) error {
	attempt := 0
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		err := c.doRequest(ctx, path, query, initData, out)
		if err == nil {
			return nil
		}
		if he, ok := AsHTTPError(err); ok && !he.IsRetryable() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		c.log.Warn("request failed, retrying", slog.String("path", path), slog.Int("attempt", attempt), sl.Err(err))
		return retry.RetryableError(err)
	})
}
