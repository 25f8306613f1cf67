// Package retry provides a generic retry/backoff wrapper (spec C4,
// §4.4) used by internal/upstream and internal/imagefetch. Backoff
// parameters follow spec §4.2: base 500ms, factor 2, jitter ±20%, cap 30s.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff parameters, per spec §4.2.
const (
	BaseBackoff    = 500 * time.Millisecond
	MaxBackoff     = 30 * time.Second
	BackoffFactor  = 2.0
	JitterFraction = 0.20
)

// Classification is the result of classifying an error raised by an
// operation under retry. For a non-nil error at most one of Retryable/Fatal
// is set. AuthExpired may be set on its own: once the single refresh has
// been used, such an error is returned without further attempts.
type Classification struct {
	Retryable   bool
	Fatal       bool
	AuthExpired bool
}

// Classifier inspects an error and reports how RetryPolicy should react,
// per the error taxonomy in spec §7.
type Classifier func(err error) Classification

// ErrBudgetExhausted is returned (wrapped) when all retry attempts have
// been consumed and the last error was still retryable.
var ErrBudgetExhausted = errors.New("retry: attempts exhausted")

// TokenRefresher performs a single, best-effort token refresh. Invoked at
// most once per Do/DoValue call when the classifier reports AuthExpired, and does
// not consume retry budget (spec §4.4).
type TokenRefresher func(ctx context.Context) error

// Policy wraps operations with classification-driven retry and exponential
// backoff. A Policy is safe for concurrent use; each call to Do is an
// independent, cancellable attempt sequence.
type Policy struct {
	Attempts int
	Classify Classifier
	Refresh  TokenRefresher
	Logger   *slog.Logger

	// sleepFunc allows tests to avoid real delays; defaults to context-aware
	// time.Sleep, matching the teacher's graph.Client.sleepFunc pattern.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a Policy. logger may be nil (defaults to slog.Default()).
func New(attempts int, classify Classifier, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}

	return &Policy{
		Attempts:  attempts,
		Classify:  classify,
		Logger:    logger,
		sleepFunc: sleepCtx,
	}
}

// Do runs op, retrying on retryable errors up to Attempts times with
// exponential backoff. Each attempt observes ctx cancellation. On
// AuthExpired, Refresh (if set) is invoked once before the next attempt,
// without consuming retry budget.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})

	return err
}

// DoValue is the generic form of Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempt := 0
	refreshed := false

	for {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry: canceled: %w", err)
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		cls := p.Classify(err)

		if cls.AuthExpired && !refreshed && p.Refresh != nil {
			refreshed = true

			if refreshErr := p.Refresh(ctx); refreshErr != nil {
				p.Logger.Warn("retry: token refresh failed", slog.String("error", refreshErr.Error()))
			}
			// A single silent refresh does not consume retry budget (spec §4.4).
			continue
		}

		if cls.Fatal || !cls.Retryable {
			return zero, err
		}

		if attempt >= p.Attempts {
			return zero, fmt.Errorf("retry: %w: %w", ErrBudgetExhausted, err)
		}

		backoff := calcBackoff(attempt)

		p.Logger.Warn("retry: attempt failed, backing off",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		if sleepErr := p.sleepFunc(ctx, backoff); sleepErr != nil {
			return zero, fmt.Errorf("retry: canceled during backoff: %w", sleepErr)
		}

		attempt++
	}
}

// calcBackoff computes exponential backoff with jitter, per spec §4.2:
// base 500ms, factor 2, jitter ±20%, cap 30s.
func calcBackoff(attempt int) time.Duration {
	backoff := float64(BaseBackoff) * math.Pow(BackoffFactor, float64(attempt))
	if backoff > float64(MaxBackoff) {
		backoff = float64(MaxBackoff)
	}

	jitter := backoff * JitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter, not security sensitive
	backoff += jitter

	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// sleepCtx waits for d or until ctx is canceled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
