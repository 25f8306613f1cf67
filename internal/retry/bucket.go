package retry

import (
	"context"

	"golang.org/x/time/rate"
)

// TokenBucket is a thin wrapper around golang.org/x/time/rate.Limiter used
// for the two process-wide rate limiters named in spec §4.6/§5: upstream
// record/attachment-resolve calls, and image downloads. Sharing a single
// *TokenBucket instance across components makes the limit process-wide,
// matching the teacher's BandwidthLimiter design.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a limiter allowing ratePerSecond requests/sec with
// a burst equal to the rate (one second's worth of headroom).
func NewTokenBucket(ratePerSecond float64) *TokenBucket {
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}

	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a single token is available or ctx is canceled.
func (b *TokenBucket) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}
