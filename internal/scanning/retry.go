package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/api/googleapi"
)

// Category classifies why a model call failed
type Category string

const (
	CategoryBadRequest   Category = "bad_request"
	CategoryUnauthorized Category = "unauthorized"
	CategoryNotFound     Category = "not_found"
	CategoryTooLarge     Category = "payload_too_large"
	CategoryRateLimit    Category = "rate_limit"
	CategoryServer       Category = "server_error"
	CategoryTimeout      Category = "timeout"
	CategoryCanceled     Category = "canceled"
	CategoryNetwork      Category = "network"
	CategoryEmpty        Category = "empty_response"
	CategoryMalformed    Category = "malformed_response"
	CategoryUnknown      Category = "unknown"
)

// ExtractionError is returned when a model call fails or its output cannot be used
type ExtractionError struct {
	Op         string
	Category   Category
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ExtractionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func malformed(op string, err error) *ExtractionError {
	return &ExtractionError{Op: op, Category: CategoryMalformed, Err: err}
}

// statusError is an HTTP failure from a provider that does not use googleapi
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// categorize wraps err in an ExtractionError and decides whether it is worth retrying
func categorize(op string, err error) *ExtractionError {
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr
	}

	e := &ExtractionError{Op: op, Category: CategoryUnknown, Err: err}

	var apiErr *googleapi.Error
	var httpErr *statusError
	var netErr net.Error
	switch {
	case errors.As(err, &apiErr):
		e.StatusCode = apiErr.Code
		e.Category, e.Retryable = categorizeStatus(apiErr.Code)
	case errors.As(err, &httpErr):
		e.StatusCode = httpErr.StatusCode
		e.Category, e.Retryable = categorizeStatus(httpErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		e.Category = CategoryTimeout
		e.Retryable = true
	case errors.Is(err, context.Canceled):
		e.Category = CategoryCanceled
	case errors.As(err, &netErr):
		e.Category = CategoryNetwork
		e.Retryable = true
	}
	return e
}

func categorizeStatus(code int) (Category, bool) {
	switch {
	case code == 400:
		return CategoryBadRequest, false
	case code == 401 || code == 403:
		return CategoryUnauthorized, false
	case code == 404:
		return CategoryNotFound, false
	case code == 413:
		return CategoryTooLarge, false
	case code == 429:
		return CategoryRateLimit, true
	case code >= 500:
		return CategoryServer, true
	default:
		return CategoryUnknown, false
	}
}

// RetryPolicy controls how transient provider failures are retried
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy retries rate limits and server errors with exponential backoff
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: 1 * time.Second,
	MaxDelay:     8 * time.Second,
	Multiplier:   2.0,
}

// do runs fn until it succeeds, fails with a non-retryable error, runs out of
// attempts or ctx is done
func (p RetryPolicy) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	delay := p.InitialDelay

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		extErr := categorize(op, err)
		if !extErr.Retryable || attempt >= attempts {
			return extErr
		}

		slog.Warn("Retrying model call",
			"op", op,
			"attempt", attempt,
			"category", extErr.Category,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return categorize(op, ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
