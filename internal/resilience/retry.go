package resilience

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/alvarorichard/gocatalog/internal/util"
)

// RetryPolicy configures exponential backoff. MaxAttempts counts the first call.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultExponential is 3 attempts starting at 500ms, doubling, capped at 10s
func DefaultExponential() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
	}
}

// CalculateDelay returns min(InitialDelay * Multiplier^attempt, MaxDelay).
// attempt 0 is the wait after the first failure.
func (p RetryPolicy) CalculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && (d > float64(p.MaxDelay) || math.IsInf(d, 1)) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p RetryPolicy) attempts() uint {
	if p.MaxAttempts < 1 {
		// retry-go treats 0 as "forever"
		return 1
	}
	return uint(p.MaxAttempts)
}

func (p RetryPolicy) options(ctx context.Context, name string) []retry.Option {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.attempts()),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			// retry-go numbers the first wait 1
			return p.CalculateDelay(int(n) - 1)
		}),
		retry.OnRetry(func(n uint, err error) {
			util.Debug("Attempt failed", "operation", name, "attempt", n+1, "of", p.attempts(), "error", err)
		}),
	}
	if p.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(p.MaxDelay))
	}
	return opts
}

// Permanent marks err so no further attempts are made. Callers of
// RetryWithBackoff, Do and Guarded receive err itself.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return retry.Unrecoverable(err)
}

// ClassifyStatus marks err permanent when code is a client error that another
// attempt cannot fix. 408 and 429 stay retryable.
func ClassifyStatus(code int, err error) error {
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}

// RetryWithBackoff runs op until it succeeds or the attempts run out, returning
// the last error unchanged. The wait between attempts ends early when ctx is done.
func RetryWithBackoff(ctx context.Context, p RetryPolicy, name string, op func() error) error {
	return retry.Do(op, p.options(ctx, name)...)
}

// Do is RetryWithBackoff for operations that produce a value
func Do[T any](ctx context.Context, p RetryPolicy, name string, op func() (T, error)) (T, error) {
	return retry.DoWithData(op, p.options(ctx, name)...)
}

// Guarded retries op behind cb. Each attempt records exactly one outcome on the
// breaker; once the breaker opens, remaining attempts are abandoned and
// ErrCircuitOpen is returned. A nil breaker degrades to plain retrying.
func Guarded[T any](ctx context.Context, cb *CircuitBreaker, p RetryPolicy, name string, op func() (T, error)) (T, error) {
	if cb == nil {
		return Do(ctx, p, name, op)
	}
	return Do(ctx, p, name, func() (T, error) {
		var zero T
		if cb.IsOpen() {
			return zero, retry.Unrecoverable(ErrCircuitOpen)
		}
		v, err := op()
		if err != nil {
			cb.RecordFailure()
			return zero, err
		}
		cb.RecordSuccess()
		return v, nil
	})
}
