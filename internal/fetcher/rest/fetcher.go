// Package rest implements the backoff fetcher used to pull records from
// external JSON APIs.
package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/metrics"
	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

const (
	defaultMaxAttempts = 5
	defaultTimeout     = 30 * time.Second
	defaultUserAgent   = "lakeingest/1.0"
)

// Config controls Fetcher behavior.
type Config struct {
	Timeout     time.Duration
	BackoffUnit time.Duration
	MaxAttempts int
	UserAgent   string
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithSleeper replaces the timer-based sleeper.
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) {
		if s != nil {
			f.sleeper = s
		}
	}
}

// Limiter gates each outbound request.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// WithLimiter throttles every attempt through l.
func WithLimiter(l Limiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// Fetcher issues GET requests and retries non-200 replies with exponential
// backoff. Transport failures are returned immediately and do not consume
// the attempt budget.
type Fetcher struct {
	client  *http.Client
	policy  RetryPolicy
	sleeper Sleeper
	limiter Limiter
	cfg     Config
	logger  *zap.Logger
}

var _ pipeline.Fetcher = (*Fetcher)(nil)

// New constructs a Fetcher.
func New(cfg Config, policy RetryPolicy, logger *zap.Logger, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if policy == nil {
		policy = UniformRetryPolicy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		policy:  policy,
		sleeper: TimerSleeper{},
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one logical fetch and returns the decoded 200 body.
func (f *Fetcher) Fetch(ctx context.Context, req pipeline.FetchRequest) (pipeline.Payload, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = f.cfg.MaxAttempts
	}
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, target); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
			}
		}
		status, body, err := f.do(ctx, target, req.Headers)
		if err != nil {
			metrics.ObserveFetchAttempt(req.Source, "transport_error")
			return nil, fmt.Errorf("fetch %s: %w: %w", req.URL, pipeline.ErrTransport, err)
		}
		if status == http.StatusOK {
			payload, err := pipeline.DecodePayload(body)
			if err != nil {
				metrics.ObserveFetchAttempt(req.Source, "malformed")
				return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
			}
			metrics.ObserveFetchAttempt(req.Source, "success")
			return payload, nil
		}

		f.logger.Warn("Request failed",
			zap.String("source", req.Source),
			zap.String("url", req.URL),
			zap.Int("status", status),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
		)
		if !f.policy.Retryable(status) {
			metrics.ObserveFetchAttempt(req.Source, "fatal_status")
			return nil, fmt.Errorf("fetch %s: status %d: %w", req.URL, status, pipeline.ErrNonRetryableStatus)
		}
		metrics.ObserveFetchAttempt(req.Source, "retry")
		if attempt == maxAttempts {
			break
		}
		if err := f.sleeper.Sleep(ctx, Backoff(attempt, f.cfg.BackoffUnit)); err != nil {
			return nil, fmt.Errorf("fetch %s: backoff interrupted: %w", req.URL, err)
		}
	}

	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", req.URL, maxAttempts, pipeline.ErrRetriesExhausted)
}

func (f *Fetcher) do(ctx context.Context, target string, headers map[string]string) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", f.cfg.UserAgent)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func buildURL(raw string, query map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q must be absolute", raw)
	}
	if len(query) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
