package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryConfig defines retry behavior around a Provider.
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts
	InitialDelay  time.Duration // Delay before the first retry
	MaxDelay      time.Duration // Cap on the delay between retries
	BackoffFactor float64       // Multiplier for exponential backoff
	Jitter        bool          // Add jitter to prevent thundering herd
}

// DefaultRetryConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Shared default configuration
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// RetryableError lets errors declare whether they should be retried.
type RetryableError interface {
	error
	ShouldRetry() bool
}

// TransientError wraps an error that should be retried.
type TransientError struct {
	Underlying error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error: %v", e.Underlying)
}

// ShouldRetry implements RetryableError.
func (e *TransientError) ShouldRetry() bool {
	return true
}

func (e *TransientError) Unwrap() error {
	return e.Underlying
}

// NewTransientError marks an error as retryable.
func NewTransientError(err error) *TransientError {
	return &TransientError{Underlying: err}
}

// RetryProvider wraps a Provider with exponential backoff.
type RetryProvider struct {
	provider Provider
	config   RetryConfig
}

// NewRetryProvider wraps the provider with the given retry config.
func NewRetryProvider(provider Provider, config RetryConfig) *RetryProvider {
	return &RetryProvider{provider: provider, config: config}
}

// Generate implements Provider with retry logic. Context cancellation is
// honoured between attempts.
func (r *RetryProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(r.calculateDelay(attempt)):
			}
		}

		response, err := r.provider.Generate(ctx, systemPrompt, userPrompt)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			break
		}
		if attempt == r.config.MaxRetries {
			break
		}
	}

	return "", fmt.Errorf("failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

// ModelName implements Provider.
func (r *RetryProvider) ModelName() string {
	return r.provider.ModelName()
}

// calculateDelay computes the backoff delay for the given attempt.
func (r *RetryProvider) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1)))
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter {
		jitterFactor := 2*time.Now().UnixNano()%2 - 1 // -1 or 1
		jitter := time.Duration(float64(delay) * 0.1 * float64(jitterFactor))
		delay += jitter
		if delay < 0 {
			delay = r.config.InitialDelay
		}
	}
	return delay
}

// shouldRetry classifies errors: explicit RetryableError implementations
// win, then common transient patterns in the message.
func shouldRetry(err error) bool {
	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.ShouldRetry()
	}

	errStr := err.Error()

	// Network and timeout errors
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") {
		return true
	}

	// Rate limiting
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "429") {
		return true
	}

	// Server errors
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}

	// Empty responses are worth another attempt
	if strings.Contains(errStr, "empty response") {
		return true
	}

	return false
}
