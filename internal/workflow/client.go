package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	tokenHeader     = "x-server-token"
	registerTimeout = 30 * time.Second
	nextTimeout     = 30 * time.Second
	respondTimeout  = 60 * time.Second
	maxErrorBody    = 4096
)

// ClientConfig configures a Client. Zero durations fall back to defaults.
type ClientConfig struct {
	BaseURL    string
	ServerKey  string
	Slug       string
	ServerName string
	HTTPClient *http.Client
	// MaxRetries bounds the extra attempts Respond makes on transport errors and 5xx.
	MaxRetries int
	RetryDelay time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
	Log        zerolog.Logger
}

// Client talks to the remote workflow API.
type Client struct {
	cfg ClientConfig

	mu    sync.RWMutex
	token string
}

// NewClient constructs a Client for cfg.
func NewClient(cfg ClientConfig) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		// Deadlines come from per-call contexts.
		cfg.HTTPClient = &http.Client{Timeout: 0}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Client{cfg: cfg, token: cfg.ServerKey}
}

// Token returns the server key currently sent with each request.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the server key, e.g. after a registration.
func (c *Client) SetToken(key string) {
	c.mu.Lock()
	c.token = key
	c.mu.Unlock()
}

// Register announces this server and returns its new key.
// The returned key is also installed on the client.
func (c *Client) Register(ctx context.Context) (Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()
	body := registerRequest{Slug: c.cfg.Slug, ServerName: c.cfg.ServerName}
	c.cfg.Log.Info().Str("url", c.cfg.BaseURL+"/workflow/register").Str("slug", body.Slug).Str("server_name", body.ServerName).Msg("registering server")
	resp, data, err := c.do(ctx, http.MethodPost, "/workflow/register", body, false)
	if err != nil {
		return Registration{}, fmt.Errorf("register: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Registration{}, statusError{op: "register", code: resp.StatusCode, body: truncate(data)}
	}
	var rr registerResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return Registration{}, fmt.Errorf("register: decode response: %w", err)
	}
	if strings.TrimSpace(rr.Server.ServerKey) == "" {
		return Registration{}, apiError{op: "register", message: "server key missing from response"}
	}
	reg := Registration{ServerKey: rr.Server.ServerKey, Message: rr.Message}
	if rr.Server.ID != nil {
		reg.ServerID = fmt.Sprint(rr.Server.ID)
	}
	c.SetToken(reg.ServerKey)
	c.cfg.Log.Info().Str("server_id", reg.ServerID).Str("message", reg.Message).Msg("server registered")
	return reg, nil
}

// Next fetches the next task. It returns (nil, nil) when no work is queued.
func (c *Client) Next(ctx context.Context) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, nextTimeout)
	defer cancel()
	resp, data, err := c.do(ctx, http.MethodGet, "/workflow/next", nil, true)
	if err != nil {
		return nil, fmt.Errorf("next: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, unauthorizedError{op: "next"}
	}
	if resp.StatusCode >= 400 {
		return nil, statusError{op: "next", code: resp.StatusCode, body: truncate(data)}
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("next: decode response: %w", err)
	}
	if !env.Success {
		return nil, apiError{op: "next", message: env.Message}
	}
	return env.Data, nil
}

// Respond delivers a task response. Transport errors and 5xx are retried up
// to MaxRetries times; 401 and success=false replies are not.
func (c *Client) Respond(ctx context.Context, r Response) error {
	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.cfg.Log.Warn().Str("task_id", r.TaskID).Int("attempt", attempt+1).Err(err).Msg("retrying response delivery")
			if serr := c.cfg.Sleep(ctx, c.cfg.RetryDelay); serr != nil {
				return serr
			}
		}
		err = c.respondOnce(ctx, r)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func (c *Client) respondOnce(ctx context.Context, r Response) error {
	ctx, cancel := context.WithTimeout(ctx, respondTimeout)
	defer cancel()
	resp, data, err := c.do(ctx, http.MethodPost, "/workflow/responses", r, true)
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return unauthorizedError{op: "respond"}
	}
	if resp.StatusCode >= 400 {
		return statusError{op: "respond", code: resp.StatusCode, body: truncate(data)}
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("respond: decode response: %w", err)
	}
	if !env.Success {
		return apiError{op: "respond", message: env.Message}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody any, auth bool) (*http.Response, []byte, error) {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set(tokenHeader, c.Token())
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, data, nil
}

func retryable(err error) bool {
	if IsUnauthorized(err) || IsAPIError(err) {
		return false
	}
	if code := StatusCode(err); code != 0 {
		return code >= 500
	}
	return true
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return strings.TrimSpace(string(b))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
