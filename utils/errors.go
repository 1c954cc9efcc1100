package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// Permanent fetch failures. These are never retried.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrBlocked          = errors.New("blocked")
)

// ErrCircuitOpen is returned without calling the guarded operation while a
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTransient marks failures worth retrying (network, timeout, throttling).
var ErrTransient = errors.New("transient failure")

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBlocked) ||
		errors.Is(err, ErrCircuitOpen)
}

// ClassifyHTTPStatus maps a response status to the fetch error taxonomy.
// It returns nil for statuses that are not failures.
func ClassifyHTTPStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("http %d: %w", code, ErrPermissionDenied)
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("http %d: %w", code, ErrNotFound)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("http %d: %w", code, ErrTransient)
	case code >= 400:
		return fmt.Errorf("http %d", code)
	}
	return nil
}
