package ingest

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cellgate/internal/testutil"
	"github.com/banshee-data/cellgate/internal/timeutil"
)

var errRefused = errors.New("connection refused")

func failingDial(failures int, calls *int) DialFunc {
	return func(context.Context) (Source, error) {
		*calls++
		if *calls <= failures {
			return nil, errRefused
		}
		return testutil.NewScriptedSource(), nil
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1, nil))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2, nil))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4, nil))
	assert.Equal(t, time.Second, p.Delay(10, nil))
	assert.Equal(t, 100*time.Millisecond, p.Delay(0, nil))

	assert.Zero(t, RetryPolicy{}.Delay(3, nil))
	assert.Equal(t, 2*time.Second, DefaultRetryPolicy().Delay(7, nil))
}

func TestRetryPolicy_DelayJitter(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, Multiplier: 1, Jitter: true}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		d := p.Delay(1, rng)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}
	assert.Equal(t, 500*time.Millisecond, p.Delay(1, nil))
}

func TestConnect_RetriesUntilSuccess(t *testing.T) {
	mute(t)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	calls := 0

	src, err := Connect(context.Background(), failingDial(3, &calls), DefaultRetryPolicy(), clock)
	require.NoError(t, err)
	assert.NotNil(t, src)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestConnect_MaxAttempts(t *testing.T) {
	mute(t)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	calls := 0
	policy := RetryPolicy{InitialDelay: time.Second, Multiplier: 2, MaxDelay: 3 * time.Second, MaxAttempts: 4}

	_, err := Connect(context.Background(), failingDial(10, &calls), policy, clock)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, clock.Sleeps())
}

func TestConnect_ContextCancelled(t *testing.T) {
	mute(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := Connect(ctx, failingDial(10, &calls), DefaultRetryPolicy(), timeutil.NewMockClock(time.Unix(0, 0)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
