package utils

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds the parameters for the retry strategy.
//
// Delay after failed attempt k (0-based) is min(BaseDelay*Multiplier^k,
// MaxDelay) scaled by a uniform factor in [0.5, 1.0].
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Logger     *Logger

	// Sleep and Jitter are swapped out in tests.
	Sleep  func(time.Duration)
	Jitter func() float64
}

// Do executes fn, retrying transient failures with jittered exponential
// back-off. Permanent failures and context cancellation are returned
// immediately. When every attempt fails the last error is returned as is.
func (r *RetryConfig) Do(operationName string, fn func() error) error {
	var lastErr error
	attempts := r.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if IsPermanent(lastErr) {
			if r.Logger != nil {
				r.Logger.Warn("[retry] %s failed permanently: %v", operationName, lastErr)
			}
			return lastErr
		}

		if attempt < attempts-1 {
			delay := r.Delay(attempt)
			if r.Logger != nil {
				r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
					operationName, attempt+1, attempts, lastErr, delay)
			}
			r.sleep(delay)
		}
	}

	if r.Logger != nil {
		r.Logger.Error("[retry] %s failed after %d attempts: %v", operationName, attempts, lastErr)
	}
	return lastErr
}

// Delay returns the jittered wait after failed attempt k.
func (r *RetryConfig) Delay(k int) time.Duration {
	mult := r.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(r.BaseDelay) * math.Pow(mult, float64(k))
	if r.MaxDelay > 0 && d > float64(r.MaxDelay) {
		d = float64(r.MaxDelay)
	}
	return time.Duration(d * r.jitter())
}

func (r *RetryConfig) jitter() float64 {
	if r.Jitter != nil {
		return r.Jitter()
	}
	return 0.5 + rand.Float64()*0.5
}

func (r *RetryConfig) sleep(d time.Duration) {
	if r.Sleep != nil {
		r.Sleep(d)
		return
	}
	time.Sleep(d)
}
