package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"postbridge/internal/domain/entity"
	"postbridge/internal/observability/tracing"
	"postbridge/internal/resilience/circuitbreaker"
)

// submitPayload is the JSON body of a platform submit call.
type submitPayload struct {
	Title       string `json:"title"`
	Excerpt     string `json:"excerpt,omitempty"`
	URL         string `json:"url"`
	Slug        string `json:"slug,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// submitResponse is the platform's answer to a successful submit.
type submitResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// platformErrorResponse carries the error detail the platform returns
// alongside a non-2xx status.
type platformErrorResponse struct {
	Message string `json:"message"`
}

const maxErrorBodyBytes = 4096

// HTTPClient submits posts to the social platform over its HTTP API.
//
// Each Submit is rate limited with a token bucket and routed through a
// circuit breaker so a misbehaving platform cannot absorb the whole worker
// pool. A breaker-open rejection surfaces as a network-kind APIError, which
// the delivery layer treats as retryable.
type HTTPClient struct {
	cfg         *Config
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
}

// NewHTTPClient creates an HTTPClient from the given configuration. Zero
// tuning values fall back to the config defaults so a hand-built Config is
// usable.
func NewHTTPClient(cfg *Config) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RatePerSecond, cfg.Burst),
		breaker:     circuitbreaker.New(circuitbreaker.PlatformAPIConfig()),
	}
}

// Submit sends the post to the platform and returns its external identity.
// Failures come back as *APIError; the only non-APIError failures are
// payload marshalling and context cancellation during rate limiting.
func (c *HTTPClient) Submit(ctx context.Context, post *entity.Post) (*SubmitResult, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "platform.submit")
	defer span.End()
	span.SetAttributes(attribute.Int64("post.id", post.ID))

	if err := c.rateLimiter.Allow(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doSubmit(ctx, post)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("platform circuit breaker rejected submit",
				slog.Int64("post_id", post.ID),
				slog.Any("error", err))
			return nil, &APIError{
				Kind:    KindNetwork,
				Message: fmt.Sprintf("circuit breaker rejected request: %v", err),
			}
		}
		return nil, err
	}

	return result.(*SubmitResult), nil
}

// doSubmit performs one HTTP round trip. Network failures and non-2xx
// statuses are both returned as *APIError so the circuit breaker counts them
// and the caller can classify them.
func (c *HTTPClient) doSubmit(ctx context.Context, post *entity.Post) (*SubmitResult, error) {
	payload := buildSubmitPayload(post)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal submit payload: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/v1/posts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{
			Kind:    KindNetwork,
			Message: fmt.Sprintf("execute http request: %v", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var submitResp submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
			return nil, &APIError{
				Kind:       KindUnknown,
				HTTPStatus: resp.StatusCode,
				Message:    fmt.Sprintf("decode submit response: %v", err),
			}
		}
		if submitResp.ID == "" {
			return nil, &APIError{
				Kind:       KindUnknown,
				HTTPStatus: resp.StatusCode,
				Message:    "submit response missing post id",
			}
		}
		return &SubmitResult{
			ExternalPostID:  submitResp.ID,
			ExternalPostURL: submitResp.URL,
		}, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return nil, &APIError{
		Kind:       KindFromStatus(resp.StatusCode),
		HTTPStatus: resp.StatusCode,
		Message:    extractErrorMessage(resp.StatusCode, body),
	}
}

func buildSubmitPayload(post *entity.Post) submitPayload {
	p := submitPayload{
		Title:   post.Title,
		Excerpt: post.Excerpt,
		URL:     post.URL,
		Slug:    post.Slug,
	}
	if post.PublishedAt != nil {
		p.PublishedAt = post.PublishedAt.Format(time.RFC3339)
	}
	return p
}

// extractErrorMessage pulls the platform's error message out of the body,
// falling back to the raw body when it is not the documented JSON shape.
func extractErrorMessage(status int, body []byte) string {
	var errResp platformErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return errResp.Message
	}
	if len(body) > 0 {
		return string(body)
	}
	return http.StatusText(status)
}
