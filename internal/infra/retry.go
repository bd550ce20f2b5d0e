package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"solarcore/internal/domain"
)

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. WithRetry returns the wrapped
// error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// WithRetry runs fn with exponential backoff. Context errors, domain.ErrNotFound
// and Permanent errors stop immediately. When every attempt fails the last
// error is returned marked as domain.ErrTransientIO.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrNotFound) {
			return err
		}

		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	if errors.Is(lastErr, domain.ErrTransientIO) {
		return lastErr
	}
	return fmt.Errorf("%w: %w", domain.ErrTransientIO, lastErr)
}

func IsRetryableHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout ||
		statusCode >= 500
}

// StatusError turns a non-2xx response into an error, marking it Permanent
// unless the status is retryable. 404 maps to domain.ErrNotFound.
func StatusError(service string, statusCode int, body []byte) error {
	err := fmt.Errorf("%s returned status %d: %s", service, statusCode, body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", err, domain.ErrNotFound)
	case IsRetryableHTTPStatus(statusCode):
		return err
	default:
		return Permanent(err)
	}
}
