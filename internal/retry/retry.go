// Package retry implements exponential-backoff retries for provider calls.
// Only transient failures are retried; permanent failures surface immediately.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/agentlab/inference-gateway/internal/domain"
)

// Policy controls the backoff schedule. Delays double per attempt starting
// at BaseDelay; the loop stops after MaxAttempts calls or once MaxElapsed
// has passed since the first call, whichever comes first.
type Policy struct {
	BaseDelay   time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   500 * time.Millisecond,
		MaxAttempts: 5,
		MaxElapsed:  60 * time.Second,
	}
}

type Controller struct {
	policy Policy
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewController(policy Policy, logger *slog.Logger) *Controller {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Controller{
		policy: policy,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Do invokes fn until it succeeds, fails permanently, or the budget is
// exhausted. Exhaustion returns a *domain.ProviderUnavailableError wrapping
// the last transient cause.
func (c *Controller) Do(ctx context.Context, providerID string, fn func(ctx context.Context) error) error {
	start := c.now()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		attempts = attempt
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt == c.policy.MaxAttempts {
			break
		}

		delay := c.policy.BaseDelay << (attempt - 1)
		if c.policy.MaxElapsed > 0 && c.now().Add(delay).Sub(start) > c.policy.MaxElapsed {
			c.logger.Warn("retry budget elapsed",
				"provider", providerID,
				"attempts", attempt,
				"error", err)
			break
		}

		c.logger.Warn("transient provider failure, backing off",
			"provider", providerID,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &domain.ProviderUnavailableError{
		Provider: providerID,
		Attempts: attempts,
		Cause:    lastErr,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Attempts reports how many calls Do made before returning err, when err is
// a retry exhaustion. Returns 0, false for any other error.
func Attempts(err error) (int, bool) {
	var unavailable *domain.ProviderUnavailableError
	if errors.As(err, &unavailable) {
		return unavailable.Attempts, true
	}
	return 0, false
}
