// Package openfda implements a client for the openFDA recall-enforcement
// endpoints (/food/enforcement.json, /drug/enforcement.json,
// /device/enforcement.json).
package openfda

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Config holds client settings, decoupled from Viper so the client can be
// constructed directly in tests.
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Query selects a result window, optionally narrowed by a search expression.
type Query struct {
	Search string
	Limit  int
	Skip   int
}

// StatusError reports a non-2xx response that was not retryable.
type StatusError struct {
	Code    int
	APICode string
	Message string
}

func (e *StatusError) Error() string {
	if e.APICode != "" {
		return fmt.Sprintf("openfda: status %d (%s: %s)", e.Code, e.APICode, e.Message)
	}
	return fmt.Sprintf("openfda: status %d", e.Code)
}

// ErrSkipLimit is returned when the requested window is past the API's skip
// ceiling; callers should narrow the search with date windows instead.
var ErrSkipLimit = errors.New("openfda: skip past API ceiling")

// MaxSkip is the deepest offset the API accepts.
const MaxSkip = 25000

// Client issues enforcement searches with bounded retry on rate-limit and
// transient server errors.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a Client. A nil logger is replaced with a no-op logger.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Enforcement fetches one page of enforcement records for the given product
// type ("food", "drug", "device"). The raw response body is returned alongside
// the decoded payload so callers can archive it verbatim.
//
// A 404 with the API's NOT_FOUND code means the search matched nothing and is
// returned as an empty response, not an error.
func (c *Client) Enforcement(ctx context.Context, productType string, q Query) (*SearchResponse, []byte, error) {
	if q.Skip > MaxSkip {
		return nil, nil, ErrSkipLimit
	}

	endpoint, err := c.endpointURL(productType, q)
	if err != nil {
		return nil, nil, err
	}

	var body []byte
	var status int
	for attempt := 0; ; attempt++ {
		body, status, err = c.do(ctx, endpoint)
		if err != nil {
			return nil, nil, err
		}
		if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
			break
		}
		if attempt >= c.cfg.MaxRetries {
			return nil, nil, &StatusError{Code: status, Message: "retries exhausted"}
		}
		delay := c.backoff(attempt)
		c.logger.Warn("openFDA throttled, backing off",
			zap.String("product_type", productType),
			zap.Int("status", status),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	switch {
	case status == http.StatusOK:
	case status == http.StatusNotFound:
		var apiErr apiError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Error.Code == "NOT_FOUND" {
			return &SearchResponse{}, body, nil
		}
		return nil, nil, &StatusError{Code: status}
	default:
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		return nil, nil, &StatusError{Code: status, APICode: apiErr.Error.Code, Message: apiErr.Error.Message}
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("decode enforcement response: %w", err)
	}
	return &resp, body, nil
}

func (c *Client) endpointURL(productType string, q Query) (string, error) {
	switch productType {
	case "food", "drug", "device":
	default:
		return "", fmt.Errorf("unknown product type %q", productType)
	}

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	u = u.JoinPath(productType, "enforcement.json")

	params := url.Values{}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		params.Set("skip", strconv.Itoa(q.Skip))
	}
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch enforcement page: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read side only

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// backoff returns a jittered exponential delay for the given attempt.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BackoffInitial << uint(attempt)
	if delay > c.cfg.BackoffMax || delay <= 0 {
		delay = c.cfg.BackoffMax
	}
	half := delay / 2
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
