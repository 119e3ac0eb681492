package finary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nmathey/finahack/internal/metrics"
	"github.com/nmathey/finahack/pkg/logger"
)

const (
	defaultBaseURL        = "https://api.finary.com"
	defaultRequestTimeout = 30 * time.Second
	defaultRateLimit      = 5
)

// Config configures a Client. Zero values select the defaults.
type Config struct {
	BaseURL        string
	Retry          RetryPolicy
	TokenTimeout   time.Duration
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second
}

// Client is an authenticated HTTP client for the Finary API
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      *credentials
	retry      RetryPolicy
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// Response is a successful reply. Body is empty for NoContent responses and
// valid JSON otherwise.
type Response struct {
	StatusCode int
	Body       []byte
}

// NoContent reports whether the API answered without a body.
func (r *Response) NoContent() bool {
	return len(r.Body) == 0
}

// Decode unmarshals the body into v. NoContent decodes to nothing.
func (r *Response) Decode(v any) error {
	if r.NoContent() {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// NewClient creates a new Finary API client
func NewClient(provider TokenProvider, cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.Delay == 0 && cfg.Retry.Sleep == nil {
		cfg.Retry = DefaultRetryPolicy()
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = defaultRateLimit
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		creds:   newCredentials(provider, cfg.TokenTimeout),
		retry:   cfg.Retry,
		limiter: rate.NewLimiter(limit, 1),
		logger:  log.WithField("component", "finary"),
	}
}

// SetBaseURL overrides the default base URL (useful for testing)
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}

// Subject is the user identifier carried by the current token, when it is a JWT.
func (c *Client) Subject() string {
	return c.creds.Subject()
}

// Request sends an authenticated request and returns either a Response or an
// *APIError.
//
// 5xx answers, network errors and token acquisition failures are retried up
// to the retry policy. A 401 triggers a token renewal; a successful renewal
// buys one more attempt outside that budget and a failed one is retried like
// any other acquisition failure. A 401 after a successful renewal is final.
// 400 and other 4xx answers, as well as non-JSON bodies, are never retried.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, &APIError{Kind: KindValidation, Method: method, Endpoint: endpoint, Err: err}
	}

	log := c.logger.WithContext(ctx)
	reauthed := false
	attempt := 1
	for {
		resp, token, apiErr := c.do(ctx, method, endpoint, payload)
		if apiErr == nil {
			return resp, nil
		}
		apiErr.Attempts = attempt

		if apiErr.StatusCode == http.StatusUnauthorized && !reauthed {
			metrics.APIReauthTotal.Inc()
			log.Info("token rejected, requesting a new one", "method", method, "endpoint", endpoint)
			_, err := c.creds.Refresh(ctx, token)
			if err == nil {
				reauthed = true
				continue
			}
			apiErr = c.tokenError(ctx, method, endpoint, attempt, err)
		}

		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			log.Error("token rejected after renewal", "method", method, "endpoint", endpoint)
			return nil, apiErr

		case !apiErr.Temporary():
			return nil, apiErr

		case attempt >= c.retry.Attempts():
			log.Error("retries exhausted", "method", method, "endpoint", endpoint, "attempts", attempt, "error", apiErr.Err)
			return nil, apiErr
		}

		metrics.APIRetriesTotal.WithLabelValues(retryReason(apiErr)).Inc()
		log.Warn("transient failure, retrying",
			"method", method,
			"endpoint", endpoint,
			"attempt", attempt,
			"status_code", apiErr.StatusCode,
			"delay_ms", c.retry.Delay.Milliseconds(),
		)
		if err := c.retry.wait(ctx); err != nil {
			return nil, &APIError{Kind: KindCanceled, Method: method, Endpoint: endpoint, Attempts: attempt, Err: err}
		}
		attempt++
	}
}

// do performs one attempt. It returns the token it used so a 401 can be
// matched against the token that caused it.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (*Response, string, *APIError) {
	fail := func(kind ErrorKind, status int, transient bool, err error) *APIError {
		return &APIError{Kind: kind, Method: method, Endpoint: endpoint, StatusCode: status, Err: err, transient: transient}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fail(KindCanceled, 0, false, err)
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", fail(KindCanceled, 0, false, ctx.Err())
		}
		metrics.APIRequestsTotal.WithLabelValues(method, "token").Inc()
		return nil, "", fail(KindCredential, 0, true, err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, token, fail(KindValidation, 0, false, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("API request", "method", method, "endpoint", endpoint)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, token, fail(KindCanceled, 0, false, ctx.Err())
		}
		metrics.APIRequestsTotal.WithLabelValues(method, "network").Inc()
		return nil, token, fail(KindTransport, 0, true, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		return nil, token, fail(KindTransport, resp.StatusCode, true, fmt.Errorf("failed to read response body: %w", err))
	}

	c.logger.Debug("API response", "status_code", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		if len(bytes.TrimSpace(body)) == 0 {
			return &Response{StatusCode: status}, token, nil
		}
		if !json.Valid(body) {
			return nil, token, fail(KindShape, status, false, errors.New("response body is not valid JSON"))
		}
		return &Response{StatusCode: status, Body: body}, token, nil

	case status == http.StatusUnauthorized:
		return nil, token, fail(KindCredential, status, false, errors.New("unauthorized"))

	case status == http.StatusBadRequest:
		c.logger.Error("API rejected request",
			"method", method,
			"endpoint", endpoint,
			"request_body", string(payload),
			"response_body", string(body),
		)
		apiErr := fail(KindValidation, status, false, errors.New("bad request"))
		apiErr.Body = string(body)
		return nil, token, apiErr

	case status >= 500:
		return nil, token, fail(KindTransport, status, true, fmt.Errorf("server error: status %d", status))

	default:
		apiErr := fail(KindClient, status, false, fmt.Errorf("unexpected status %d", status))
		apiErr.Body = string(body)
		return nil, token, apiErr
	}
}

// tokenError reports a failed renewal. It is transient unless ctx is done.
func (c *Client) tokenError(ctx context.Context, method, endpoint string, attempt int, err error) *APIError {
	if ctx.Err() != nil {
		return &APIError{Kind: KindCanceled, Method: method, Endpoint: endpoint, Attempts: attempt, Err: ctx.Err()}
	}
	return &APIError{Kind: KindCredential, Method: method, Endpoint: endpoint, Attempts: attempt, Err: err, transient: true}
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		return payload, nil
	}
}

func retryReason(err *APIError) string {
	switch {
	case err.Kind == KindCredential:
		return "token"
	case err.StatusCode >= 500:
		return "server"
	default:
		return "network"
	}
}
