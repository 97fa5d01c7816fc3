package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/internal/metrics"
	"github.com/fruitsalade/studiokit/internal/retry"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

// HTTPConfig configures an HTTPEvaluator.
type HTTPConfig struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string
}

// HTTPEvaluator sends expressions to a scripthost server.
type HTTPEvaluator struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu        sync.RWMutex
	online    bool
	authToken string
}

// NewHTTP creates an HTTPEvaluator.
func NewHTTP(cfg HTTPConfig) *HTTPEvaluator {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.RetryConfig.OnRetry == nil {
		base := cfg.BaseURL
		cfg.RetryConfig.OnRetry = func(attempt int, wait time.Duration, err error) {
			metrics.RecordBridgeRetry()
			logging.Debug("retrying evaluate",
				logging.String("host", base),
				logging.Int("attempt", attempt),
				logging.Duration("wait", wait),
				logging.Err(err))
		}
	}

	return &HTTPEvaluator{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		online:      true,
		authToken:   cfg.AuthToken,
	}
}

// SetAuthToken sets the bearer token sent with every request.
func (c *HTTPEvaluator) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current bearer token.
func (c *HTTPEvaluator) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// BaseURL returns the server root.
func (c *HTTPEvaluator) BaseURL() string {
	return c.baseURL
}

func (c *HTTPEvaluator) applyAuth(req *http.Request) {
	if token := c.AuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// IsOnline reports whether the last request reached the server.
func (c *HTTPEvaluator) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *HTTPEvaluator) setOnline(online bool) {
	c.mu.Lock()
	changed := c.online != online
	c.online = online
	c.mu.Unlock()

	if changed {
		if online {
			logging.Info("script host is back online", logging.String("url", c.baseURL))
		} else {
			logging.Warn("script host is offline", logging.String("url", c.baseURL))
		}
	}
}

// Ping checks that the server answers /health.
func (c *HTTPEvaluator) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setOnline(false)
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	c.setOnline(true)
	return nil
}

// Evaluate posts the expression to /api/v1/evaluate. Network errors,
// 429 and 5xx responses are retried. For a SendOnce context or a
// launchScript call only 429 and failed dials are retried, since the host
// never ran those requests.
func (c *HTTPEvaluator) Evaluate(ctx context.Context, expression string) (string, error) {
	body, err := json.Marshal(protocol.EvaluateRequest{Expression: expression})
	if err != nil {
		return "", err
	}
	once := IsSendOnce(ctx) || strings.HasPrefix(expression, FnLaunchScript+"(")

	return retry.DoWithResult(ctx, c.retryConfig, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/evaluate", bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if id := logging.GetRequestID(ctx); id != "" {
			req.Header.Set("X-Request-ID", id)
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.setOnline(false)
			offline := fmt.Errorf("%w: %v", ErrOffline, err)
			if once && !dialFailed(err) {
				return "", offline
			}
			return "", retry.Retryable(offline)
		}
		defer resp.Body.Close()
		c.setOnline(true)

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return "", retry.Retryable(fmt.Errorf("server busy: %d", resp.StatusCode))
		case resp.StatusCode >= 500 && once:
			return "", fmt.Errorf("server error: %d %s", resp.StatusCode, readError(resp.Body))
		case resp.StatusCode >= 500:
			return "", retry.Retryable(fmt.Errorf("server error: %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return "", fmt.Errorf("evaluate failed: %d %s", resp.StatusCode, readError(resp.Body))
		}

		var out protocol.EvaluateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if out.Error != "" {
			logging.WithContext(ctx).Debug("host reported evaluation error", logging.String("error", out.Error))
		}
		return out.Result, nil
	})
}

// dialFailed reports whether err happened before a connection existed.
func dialFailed(err error) bool {
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}

func readError(r io.Reader) string {
	var e protocol.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
