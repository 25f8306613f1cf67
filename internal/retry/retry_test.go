package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func classifyAlwaysRetryable(error) Classification { return Classification{Retryable: true} }
func classifyAlwaysFatal(error) Classification      { return Classification{Fatal: true} }

func noSleep(p *Policy) {
	p.sleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
}

func TestDoSucceedsFirstTry(t *testing.T) {
	p := New(3, classifyAlwaysRetryable, nil)
	noSleep(p)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	p := New(3, classifyAlwaysRetryable, nil)
	noSleep(p)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsBudget(t *testing.T) {
	p := New(2, classifyAlwaysRetryable, nil)
	noSleep(p)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errBoom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestDoFatalStopsImmediately(t *testing.T) {
	p := New(5, classifyAlwaysFatal, nil)
	noSleep(p)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errBoom
	})

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBudgetExhausted))
	assert.Equal(t, 1, calls)
}

func TestDoAuthExpiredRefreshesWithoutConsumingBudget(t *testing.T) {
	p := New(1, func(err error) Classification {
		return Classification{AuthExpired: true}
	}, nil)
	noSleep(p)

	refreshed := 0
	p.Refresh = func(ctx context.Context) error {
		refreshed++
		return nil
	}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errBoom
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 2, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p := New(5, classifyAlwaysRetryable, nil)
	noSleep(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func(ctx context.Context) error {
		return nil
	})

	require.Error(t, err)
}

func TestDoValueReturnsTypedResult(t *testing.T) {
	p := New(1, classifyAlwaysRetryable, nil)
	noSleep(p)

	v, err := DoValue(context.Background(), p, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(1000)
	err := tb.Wait(context.Background())
	require.NoError(t, err)
}
