package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/skypro1111/speechcoach/internal/apperr"
)

// Credentials identify the user on the remote service. They are passed to
// every call; nothing in the client reads them from ambient state.
type Credentials struct {
	Email string
	Token string
}

// Authenticated reports whether a token is present
func (c Credentials) Authenticated() bool {
	return strings.TrimSpace(c.Token) != ""
}

// Config contains remote client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client wraps a resty client with request statistics
type Client struct {
	http   *resty.Client
	logger *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a client for the service at cfg.BaseURL
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "speechcoach/1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent).
		SetRetryCount(0).
		SetLogger(restyLogger{logger: logger})

	return &Client{http: httpClient, logger: logger}, nil
}

// Request starts a request carrying ctx and the bearer token
func (c *Client) Request(ctx context.Context, creds Credentials) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.Token)
}

// Check classifies the outcome of a request. Transport errors and non-2xx
// responses are wrapped in failure; a 401 additionally wraps
// apperr.ErrUnauthenticated.
func (c *Client) Check(op string, resp *resty.Response, err error, failure error) error {
	c.record(resp, err)

	if err != nil {
		return fmt.Errorf("%w: %s: %w", failure, op, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w: %s: HTTP %d", failure, apperr.ErrUnauthenticated, op, resp.StatusCode())
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: %s: HTTP %d: %s", failure, op, resp.StatusCode(), excerpt(resp.Body()))
	}
	return nil
}

func (c *Client) record(resp *resty.Response, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	if err != nil || !resp.IsSuccess() {
		c.failedRequests++
		return
	}
	c.successRequests++

	// Simple moving average
	rt := resp.Time()
	if c.avgResponseTime == 0 {
		c.avgResponseTime = rt
	} else {
		c.avgResponseTime = (c.avgResponseTime + rt) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}

// excerpt keeps error messages readable when the server answers with a page
func excerpt(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// restyLogger routes resty's own diagnostics into slog
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "resty"))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "resty"))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "resty"))
}
