// Package enhance rewrites listing descriptions through the AI service.
package enhance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/homeonmap/backend/internal/logging"
)

// MaxInputLength bounds the description sent upstream.
const MaxInputLength = 4000

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "homeonmap_enhance_requests_total",
	Help: "Description enhance calls by result (success, failure, rejected, canceled).",
}, []string{"result"})

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("enhance service unavailable")

// callerGone marks a call abandoned by its caller. The breaker does not
// count it against the AI service.
type callerGone struct{ err error }

func (e *callerGone) Error() string { return e.err.Error() }
func (e *callerGone) Unwrap() error { return e.err }

// checkResp returns an error carrying the upstream body when the status is
// not 2xx.
func checkResp(resp *http.Response, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("ai-service %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
}

// Client calls the AI service over HTTP behind a circuit breaker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[string]
}

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit. Default 5.
	ConsecutiveFailures uint32
	// Cooldown before a half-open trial call. Default 30s.
	Cooldown time.Duration
}

func NewClient(baseURL string, httpClient *http.Client, bs BreakerSettings) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if bs.ConsecutiveFailures == 0 {
		bs.ConsecutiveFailures = 5
	}
	if bs.Cooldown == 0 {
		bs.Cooldown = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ai-service",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     bs.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			var gone *callerGone
			return err == nil || errors.As(err, &gone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})

	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient, cb: cb}
}

// Enhance calls POST /api/enhance and returns the rewritten text.
func (c *Client) Enhance(ctx context.Context, text string) (string, error) {
	out, err := c.cb.Execute(func() (string, error) {
		out, err := c.enhance(ctx, text)
		if err != nil && ctx.Err() != nil {
			return "", &callerGone{err: ctx.Err()}
		}
		return out, err
	})
	var gone *callerGone
	if errors.As(err, &gone) {
		requestsTotal.WithLabelValues("canceled").Inc()
		return "", gone.err
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			requestsTotal.WithLabelValues("rejected").Inc()
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		requestsTotal.WithLabelValues("failure").Inc()
		return "", err
	}
	requestsTotal.WithLabelValues("success").Inc()
	return out, nil
}

func (c *Client) enhance(ctx context.Context, text string) (string, error) {
	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/enhance", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai-service /api/enhance: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResp(resp, "/api/enhance"); err != nil {
		return "", err
	}

	var result struct {
		EnhancedText string `json:"enhanced_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ai-service /api/enhance: decode: %w", err)
	}
	if strings.TrimSpace(result.EnhancedText) == "" {
		return "", errors.New("ai-service /api/enhance: empty response")
	}
	return result.EnhancedText, nil
}

// State reports the breaker state.
func (c *Client) State() gobreaker.State { return c.cb.State() }
