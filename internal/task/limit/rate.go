package limit

import (
	"context"
	"math/rand/v2"
	"time"
)

// DefaultRatePerSecond paces page fetches at one every five seconds on average.
const DefaultRatePerSecond = 0.2

// RateLimiter produces random pauses uniform in [0, 2/rate) seconds, so the
// mean pause is 1/rate.
type RateLimiter struct {
	rate float64
}

func NewRateLimiter(perSecond float64) RateLimiter {
	if perSecond <= 0 {
		perSecond = DefaultRatePerSecond
	}
	return RateLimiter{rate: perSecond}
}

func (r RateLimiter) Rate() float64 {
	if r.rate <= 0 {
		return DefaultRatePerSecond
	}
	return r.rate
}

func (r RateLimiter) Delay() time.Duration {
	return time.Duration(rand.Float64() * 2 / r.Rate() * float64(time.Second))
}

// Sleep waits Delay() or until ctx is done.
func (r RateLimiter) Sleep(ctx context.Context) error {
	t := time.NewTimer(r.Delay())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
