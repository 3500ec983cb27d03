package rest

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RetryPolicy decides whether a non-200 status is worth another attempt.
type RetryPolicy interface {
	Retryable(status int) bool
}

// UniformRetryPolicy retries every non-200 status identically.
type UniformRetryPolicy struct{}

// Retryable always reports true.
func (UniformRetryPolicy) Retryable(int) bool { return true }

// ClassifiedRetryPolicy retries throttling and server-side statuses only and
// fails fast on everything else (auth failures, missing resources, bad requests).
type ClassifiedRetryPolicy struct{}

// Retryable reports true for 408, 425, 429 and 5xx.
func (ClassifiedRetryPolicy) Retryable(status int) bool {
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests:
		return true
	case status >= 500 && status <= 599:
		return true
	default:
		return false
	}
}

// Retry policy names accepted by NewRetryPolicy.
const (
	PolicyUniform    = "uniform"
	PolicyClassified = "classified"
)

// NewRetryPolicy maps a configured name onto a RetryPolicy.
func NewRetryPolicy(name string) (RetryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyUniform:
		return UniformRetryPolicy{}, nil
	case PolicyClassified:
		return ClassifiedRetryPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown retry policy %q", name)
	}
}

// Backoff returns 2^attempt units; attempt counts from 1.
func Backoff(attempt int, unit time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return unit * time.Duration(1<<attempt)
}
