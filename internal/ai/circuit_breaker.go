package ai

import (
	"context"
	stderrors "errors"
	"fmt"

	"atsexpert/internal/config"
	"atsexpert/internal/errors"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker guards calls returning T. A nil *CircuitBreaker runs calls
// unguarded. It never retries.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// NewCircuitBreaker returns nil when the breaker is disabled.
func NewCircuitBreaker[T any](name string, cfg config.CircuitBreakerConfig, logger *errors.Logger) *CircuitBreaker[T] {
	if !cfg.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests &&
				failureRatio >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return !isBackendFailure(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Info("Circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String(),
					"failure_threshold", cfg.FailureThreshold)
			}
		},
	}

	return &CircuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn with circuit breaker protection
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	if c == nil || c.cb == nil {
		return fn()
	}
	return c.cb.Execute(fn)
}

// GetStats returns circuit breaker statistics
func (c *CircuitBreaker[T]) GetStats() map[string]any {
	if c == nil || c.cb == nil {
		return map[string]any{"enabled": false}
	}

	counts := c.cb.Counts()
	return map[string]any{
		"name":    c.cb.Name(),
		"state":   c.cb.State().String(),
		"enabled": true,
		"counts": map[string]uint32{
			"requests":              counts.Requests,
			"total_successes":       counts.TotalSuccesses,
			"total_failures":        counts.TotalFailures,
			"consecutive_successes": counts.ConsecutiveSuccesses,
			"consecutive_failures":  counts.ConsecutiveFailures,
		},
	}
}

// IsHealthy returns true unless the breaker is open or half-open
func (c *CircuitBreaker[T]) IsHealthy() bool {
	if c == nil || c.cb == nil {
		return true
	}
	return c.cb.State() == gobreaker.StateClosed
}

// IsRejection reports whether err was produced by a breaker refusing the call.
func IsRejection(err error) bool {
	return stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests)
}

// isBackendFailure reports whether err says the backend itself is unwell:
// timeouts, 5xx replies and transport errors. Cancellations and 4xx replies
// are caused by one caller and never count against other submissions.
func isBackendFailure(err error) bool {
	switch {
	case err == nil, stderrors.Is(err, context.Canceled):
		return false
	case isTimeout(err):
		return true
	}
	if code, ok := apiStatusCode(err); ok {
		return code >= 500
	}
	return true
}

func breakerName(kind, model string) string {
	return fmt.Sprintf("AI-%s-%s", kind, model)
}
