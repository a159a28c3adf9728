package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TgCaller/TgCaller/internal/logging"
)

// TestRetrySucceedsOnThirdAttempt exercises scenario S5: an operation
// that fails twice then succeeds, under
// {max_attempts=5, base_delay=0.1s, exponential, backoff_factor=2.0,
// jitter=false}, is invoked exactly 3 times with delays of 0.1s and 0.2s.
func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	d := NewDriver(logging.NewNop())
	cfg := Config{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, Strategy: StrategyExponential, BackoffFactor: 2.0, Jitter: false}

	var calls int32
	var timestamps []time.Time
	op := func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		timestamps = append(timestamps, time.Now())
		if n < 3 {
			return nil, errors.New("transient failure")
		}
		return "ok", nil
	}

	result, err := d.Do(context.Background(), "test-op", cfg, op)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.EqualValues(t, 3, calls)

	require.Len(t, timestamps, 3)
	d1 := timestamps[1].Sub(timestamps[0])
	d2 := timestamps[2].Sub(timestamps[1])
	assert.InDelta(t, 100*time.Millisecond, d1, float64(60*time.Millisecond))
	assert.InDelta(t, 200*time.Millisecond, d2, float64(80*time.Millisecond))

	assert.Zero(t, d.AttemptsFor("test-op"))
}

// TestRetryExhaustion ensures the driver invokes the operation at most
// max_attempts times (P7) and propagates the last error.
func TestRetryExhaustion(t *testing.T) {
	d := NewDriver(logging.NewNop())
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond, Strategy: StrategyFixed}

	var calls int32
	op := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("permanent failure")
	}

	_, err := d.Do(context.Background(), "exhaust", cfg, op)
	require.Error(t, err)
	assert.EqualValues(t, 3, calls)
}
