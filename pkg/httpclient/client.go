// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient is the retrying HTTP client shared by the backend and
// model clients.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
	SmartRetry
)

func (s RetryStrategy) String() string {
	switch s {
	case ConservativeRetry:
		return "conservative"
	case SmartRetry:
		return "smart"
	default:
		return "none"
	}
}

// conservativeAttempts bounds retries of plain server errors.
const conservativeAttempts = 2

// maxErrorBody bounds how much of a failed response is kept in errors.
const maxErrorBody = 4 << 10

type RateLimitInfo struct {
	RetryAfter        time.Duration
	ResetTime         int64
	RequestsRemaining int
	TokensRemaining   int
}

type RateLimitHeaderParser func(http.Header) RateLimitInfo

type RetryStrategyFunc func(int) RetryStrategy

// Client wraps http.Client with retries, optional throttling and request
// decoration (auth headers).
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	headerParser RateLimitHeaderParser
	strategyFunc RetryStrategyFunc
	limiter      *rate.Limiter
	decorators   []func(*http.Request)
	logger       *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithTransport keeps the current timeout and replaces the round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.client.Transport = rt
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithHeaderParser(parser RateLimitHeaderParser) Option {
	return func(c *Client) {
		c.headerParser = parser
	}
}

func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) {
		c.strategyFunc = strategyFunc
	}
}

// WithRateLimit throttles outgoing requests, retries included. A non-positive
// rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = int(math.Max(1, math.Ceil(rps)))
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBasicAuth sets basic credentials on every request when user is non-empty.
func WithBasicAuth(user, password string) Option {
	return func(c *Client) {
		if user == "" {
			return
		}
		c.decorators = append(c.decorators, func(r *http.Request) {
			r.SetBasicAuth(user, password)
		})
	}
}

// WithBearerToken sets an Authorization header when token is non-empty.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		if token == "" {
			return
		}
		c.decorators = append(c.decorators, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		})
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   5,
		baseDelay:    2 * time.Second,
		strategyFunc: DefaultRetryStrategy,
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.logger == nil {
		client.logger = slog.Default().With("component", "httpclient")
	}
	return client
}

func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do sends the request, retrying retryable statuses.
//
// A response with a non-retryable status is returned as is with a nil error;
// the caller owns its body. When retries run out, the last body is consumed
// into a *RetryableError and no response is returned. Transport and context
// errors are returned unchanged.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	for _, decorate := range c.decorators {
		decorate(req)
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}

		strategy := NoRetry
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			strategy = c.strategyFunc(resp.StatusCode)
		}
		if strategy == NoRetry {
			return resp, nil
		}

		var info RateLimitInfo
		if c.headerParser != nil {
			info = c.headerParser(resp.Header)
		}
		delay := c.calculateDelay(strategy, attempt, info)

		if attempt >= c.maxRetries || delay <= 0 || (req.Body != nil && req.GetBody == nil) {
			return nil, exhausted(resp, attempt, delay)
		}

		drain(resp)
		c.logRetry(strategy, delay, attempt, resp.StatusCode)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func exhausted(resp *http.Response, attempt int, next time.Duration) *RetryableError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &RetryableError{
		StatusCode: resp.StatusCode,
		Attempts:   attempt + 1,
		Message:    message,
		RetryAfter: next,
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

func (c *Client) calculateDelay(strategy RetryStrategy, attempt int, info RateLimitInfo) time.Duration {
	switch strategy {
	case SmartRetry:
		if info.RetryAfter > 0 {
			return info.RetryAfter
		}
		if info.ResetTime > 0 {
			if delay := time.Until(time.Unix(info.ResetTime, 0)); delay > 0 {
				return delay
			}
		}
		exponential := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		return exponential + exponential/10

	case ConservativeRetry:
		if attempt >= conservativeAttempts {
			return 0
		}
		return time.Duration(attempt+1) * c.baseDelay

	default:
		return 0
	}
}

func (c *Client) logRetry(strategy RetryStrategy, delay time.Duration, attempt int, status int) {
	maxAttempts := c.maxRetries
	if strategy == ConservativeRetry {
		maxAttempts = min(maxAttempts, conservativeAttempts)
	}

	level := slog.LevelDebug
	if strategy == SmartRetry {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "Retrying HTTP request",
		"status", status,
		"strategy", strategy.String(),
		"delay", delay,
		"attempt", fmt.Sprintf("%d/%d", attempt+1, maxAttempts))
}
