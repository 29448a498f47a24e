package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedModel = errors.New("unsupported model")
	ErrCircuitOpen      = errors.New("circuit breaker open")
	ErrTimeout          = errors.New("request deadline exceeded")
	ErrCacheCorruption  = errors.New("corrupt cache entry")
)

// ProviderError is a classified failure from a provider call. Transient
// failures (rate limits, connection errors, 5xx) may be retried; permanent
// ones (bad request, bad credentials) are surfaced immediately.
type ProviderError struct {
	Provider  string
	Status    int
	Transient bool
	Message   string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status=%d %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ProviderUnavailableError is returned once the retry policy is exhausted.
// It carries the last underlying cause.
type ProviderUnavailableError struct {
	Provider string
	Attempts int
	Cause    error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable after %d attempts: %v", e.Provider, e.Attempts, e.Cause)
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether err is worth retrying. An open circuit counts
// as transient: backing off gives the breaker time to half-open.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return errors.Is(err, ErrCircuitOpen)
}
