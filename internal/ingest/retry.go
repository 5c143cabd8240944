package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/timeutil"
)

var ErrRetriesExhausted = errors.New("ingest: connect retries exhausted")

// RetryPolicy defines the wait between connection attempts.
type RetryPolicy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
	// MaxAttempts bounds the number of dial attempts; 0 retries forever.
	MaxAttempts int
}

// DefaultRetryPolicy waits a fixed two seconds between attempts, forever.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 2 * time.Second,
		Multiplier:   1.0,
		MaxDelay:     2 * time.Second,
	}
}

// Delay returns the wait after failed attempt N (1-based).
func (p RetryPolicy) Delay(attempt int, rng *rand.Rand) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Connect dials with policy using clock for the waits between attempts.
func Connect(ctx context.Context, dial DialFunc, policy RetryPolicy, clock timeutil.Clock) (Source, error) {
	c := &Connector{Dial: dial, Policy: policy, Clock: clock}
	return c.Connect(ctx)
}

// Connector wraps a DialFunc with a retry policy. It lives outside the
// StreamReader so the reader stays transport agnostic.
type Connector struct {
	Dial   DialFunc
	Policy RetryPolicy
	Clock  timeutil.Clock
	Rand   *rand.Rand
}

// Connect dials until a connection succeeds, ctx ends, or the policy's
// attempt budget is spent.
func (c *Connector) Connect(ctx context.Context) (Source, error) {
	clock := c.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logf := monitoring.Tagged("ingest")

	for attempt := 1; ; attempt++ {
		src, err := c.Dial(ctx)
		if err == nil {
			if attempt > 1 {
				logf("connected after %d attempts", attempt)
			}
			return src, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.Policy.MaxAttempts > 0 && attempt >= c.Policy.MaxAttempts {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}

		delay := c.Policy.Delay(attempt, c.Rand)
		logf("waiting for sensor (attempt %d: %v), retrying in %v", attempt, err, delay)
		if err := clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}
