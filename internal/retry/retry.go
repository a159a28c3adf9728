// Package retry implements the engine's generic attempt loop: a policy
// wired on top of avast/retry-go's delay and hook model.
package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	retrygo "github.com/avast/retry-go/v4"

	"github.com/TgCaller/TgCaller/internal/logging"
)

// Strategy selects the delay growth between attempts.
type Strategy int

const (
	StrategyFixed Strategy = iota
	StrategyLinear
	StrategyExponential
)

// Config parameterizes one RetryDriver invocation.
type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Strategy       Strategy
	BackoffFactor  float64
	Jitter         bool
}

// ConnectionRetryConfig mirrors the original implementation's
// retry_connection preset: five attempts, 2s exponential backoff capped
// at 30s, with jitter.
func ConnectionRetryConfig() Config {
	return Config{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Strategy: StrategyExponential, BackoffFactor: 2.0, Jitter: true}
}

// StreamRetryConfig mirrors the original implementation's
// retry_stream_operation preset: three attempts, 1s linear backoff.
func StreamRetryConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Strategy: StrategyLinear, BackoffFactor: 1.0, Jitter: false}
}

// APIRetryConfig mirrors the original implementation's retry_api_call
// preset: four attempts, 0.5s exponential backoff with jitter.
func APIRetryConfig() Config {
	return Config{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second, Strategy: StrategyExponential, BackoffFactor: 2.0, Jitter: true}
}

// ReconnectRetryConfig is used by the call lifecycle's passive connection
// monitor: three attempts, exponential from 2s.
func ReconnectRetryConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 20 * time.Second, Strategy: StrategyExponential, BackoffFactor: 2.0, Jitter: true}
}

func (c Config) delay(attempt uint) time.Duration {
	var d time.Duration
	switch c.Strategy {
	case StrategyLinear:
		d = c.BaseDelay * time.Duration(attempt+1)
	case StrategyExponential:
		factor := c.BackoffFactor
		if factor <= 0 {
			factor = 2.0
		}
		d = time.Duration(float64(c.BaseDelay) * math.Pow(factor, float64(attempt)))
	default:
		d = c.BaseDelay
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	if c.Jitter {
		factor := 0.8 + rand.Float64()*0.4 // uniform in [0.8, 1.2]
		d = time.Duration(float64(d) * factor)
	}
	return d
}

// Driver runs operations under a named Config, tracking per-identifier
// attempt counters that are cleared on success or final failure.
type Driver struct {
	logger logging.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// NewDriver builds a Driver.
func NewDriver(logger logging.Logger) *Driver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Driver{logger: logger.Named("retry"), attempts: make(map[string]int)}
}

// AttemptsFor returns the current in-flight attempt count for id, 0 if
// none is in progress.
func (d *Driver) AttemptsFor(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[id]
}

// Do runs op under cfg, identified by id for attempt-counter bookkeeping
// and logging. It returns the operation's result on success, or the last
// error on exhaustion or cancellation.
func (d *Driver) Do(ctx context.Context, id string, cfg Config, op func(ctx context.Context) (any, error)) (any, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var result any
	err := retrygo.Do(
		func() error {
			select {
			case <-ctx.Done():
				return retrygo.Unrecoverable(ctx.Err())
			default:
			}
			d.mu.Lock()
			d.attempts[id]++
			attempt := d.attempts[id]
			d.mu.Unlock()

			v, opErr := op(ctx)
			if opErr == nil {
				result = v
				return nil
			}
			d.logger.Warnw("operation attempt failed", "id", id, "attempt", attempt, "error", opErr)
			return opErr
		},
		retrygo.Context(ctx),
		retrygo.Attempts(uint(maxAttempts)),
		retrygo.DelayType(func(n uint, _ error, _ *retrygo.Config) time.Duration {
			return cfg.delay(n)
		}),
		retrygo.LastErrorOnly(true),
	)

	d.mu.Lock()
	delete(d.attempts, id)
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return result, nil
}
