package streaming

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/TgCaller/TgCaller/internal/errs"
	"github.com/TgCaller/TgCaller/internal/logging"
)

// SourceProducer is an asynchronous, possibly infinite, non-restartable
// sequence of raw byte blocks. Next returns io.EOF when a finite source is
// exhausted.
type SourceProducer interface {
	Next(ctx context.Context) ([]byte, error)
}

// Stats carries a FastStreamBuffer's running telemetry.
type Stats struct {
	ChunksProduced      int64
	ChunksConsumed      int64
	ChunksDropped       int64
	Underruns           int64
	Overflows           int64
	AvgLatencyMs        float64
	BufferHealthPercent float64
	ThroughputEstimate  float64
}

// Info is a point-in-time snapshot of a buffer for introspection.
type Info struct {
	ID    string
	State State
	Level int
	Stats Stats
}

// ChunkCallback observes a chunk as it leaves the buffer, after the
// quality adapter has run.
type ChunkCallback func(StreamChunk)

// StateCallback observes a state transition.
type StateCallback func(old, new State)

// StatsCallback observes an updated stats snapshot.
type StatsCallback func(Stats)

// OverflowCallback observes a dropped chunk: the chunk that triggered the
// overflow and the chunk that was actually discarded (which may be the
// same value when drop_on_overflow is false).
type OverflowCallback func(incoming, dropped StreamChunk)

// FastStreamBuffer is a bounded producer/consumer queue of StreamChunks
// with a protective state machine and optional adaptive quality
// degradation. It is exclusively owned by one BufferManager slot.
type FastStreamBuffer struct {
	id     string
	cfg    BufferConfig
	kind   Kind
	logger logging.Logger
	clock  func() time.Time

	mu     sync.Mutex
	chunks []StreamChunk
	state  State
	stats  Stats
	closed bool

	seq int64

	chunkCbs    []ChunkCallback
	stateCbs    []StateCallback
	statsCbs    []StatsCallback
	overflowCbs []OverflowCallback

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sem    *semaphore.Weighted

	qc qualityController
}

// NewFastStreamBuffer validates cfg and builds an idle buffer identified
// by id. kind marks the media carried by chunks this buffer wraps.
func NewFastStreamBuffer(id string, cfg BufferConfig, kind Kind, logger logging.Logger) (*FastStreamBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FastStreamBuffer{
		id:     id,
		cfg:    cfg,
		kind:   kind,
		logger: logger.Named("buffer." + id),
		clock:  time.Now,
		state:  StateIdle,
	}, nil
}

// ID returns the buffer's identifier.
func (b *FastStreamBuffer) ID() string { return b.id }

// Config returns a copy of the buffer's configuration.
func (b *FastStreamBuffer) Config() BufferConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// UpdateConfig replaces the buffer's config in place, used by
// BufferManager's auto-tuning pass. It does not validate size invariants
// against the current level; callers are expected to pass a valid config.
func (b *FastStreamBuffer) UpdateConfig(cfg BufferConfig) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

// OnChunk registers a subscriber invoked for every chunk as it leaves the
// buffer. Callbacks run in the consumer's goroutine and must not block.
func (b *FastStreamBuffer) OnChunk(cb ChunkCallback) {
	b.mu.Lock()
	b.chunkCbs = append(b.chunkCbs, cb)
	b.mu.Unlock()
}

// OnState registers a subscriber invoked on every state transition.
func (b *FastStreamBuffer) OnState(cb StateCallback) {
	b.mu.Lock()
	b.stateCbs = append(b.stateCbs, cb)
	b.mu.Unlock()
}

// OnStats registers a subscriber invoked after each stats update.
func (b *FastStreamBuffer) OnStats(cb StatsCallback) {
	b.mu.Lock()
	b.statsCbs = append(b.statsCbs, cb)
	b.mu.Unlock()
}

// OnOverflow registers a subscriber invoked whenever the overflow policy
// discards a chunk.
func (b *FastStreamBuffer) OnOverflow(cb OverflowCallback) {
	b.mu.Lock()
	b.overflowCbs = append(b.overflowCbs, cb)
	b.mu.Unlock()
}

// Level returns the current chunk count.
func (b *FastStreamBuffer) Level() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// HealthPercent returns min(100, level / target_size * 100).
func (b *FastStreamBuffer) HealthPercent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.healthPercentLocked()
}

func (b *FastStreamBuffer) healthPercentLocked() float64 {
	if b.cfg.TargetSize == 0 {
		return 0
	}
	h := float64(len(b.chunks)) / float64(b.cfg.TargetSize) * 100
	if h > 100 {
		h = 100
	}
	return h
}

// AvgLatencyMs returns the EMA of dequeued chunk ages.
func (b *FastStreamBuffer) AvgLatencyMs() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.AvgLatencyMs
}

// Info returns a full snapshot under the buffer's lock.
func (b *FastStreamBuffer) Info() Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Info{ID: b.id, State: b.state, Level: len(b.chunks), Stats: b.stats}
}

// Start begins consuming source and transitions idle -> filling. It
// returns AlreadyActive if the buffer is not currently idle.
func (b *FastStreamBuffer) Start(ctx context.Context, source SourceProducer) error {
	b.mu.Lock()
	if b.state != StateIdle {
		b.mu.Unlock()
		return errs.AlreadyActive("buffer already active")
	}
	b.closed = false
	b.state = StateFilling
	b.mu.Unlock()
	b.fireState(StateIdle, StateFilling)

	bctx, cancel := context.WithCancel(ctx)
	b.ctx = bctx
	b.cancel = cancel
	b.sem = semaphore.NewWeighted(int64(b.cfg.MaxConcurrentChunks))

	b.wg.Add(2)
	go b.producerLoop(bctx, source)
	go b.consumerLoop(bctx)
	return nil
}

// Stop cancels the producer and consumer goroutines, drains buffered
// chunks, and returns to idle. Idempotent: calling Stop twice is a no-op.
// After Stop returns, no further callbacks fire for this buffer (P5).
func (b *FastStreamBuffer) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	b.mu.Lock()
	old := b.state
	b.chunks = nil
	b.state = StateIdle
	b.chunkCbs = nil
	b.stateCbs = nil
	b.statsCbs = nil
	b.overflowCbs = nil
	b.mu.Unlock()

	if old != StateIdle {
		// state callbacks are cleared above; Stop's own final transition
		// is intentionally silent, matching "no further callbacks after
		// stop" (P5).
		_ = old
	}
}

func (b *FastStreamBuffer) setErrorState() {
	b.mu.Lock()
	old := b.state
	b.state = StateError
	b.mu.Unlock()
	if old != StateError {
		b.fireState(old, StateError)
	}
}

func (b *FastStreamBuffer) producerLoop(ctx context.Context, source SourceProducer) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		block, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return
			}
			b.logger.Errorw("source produced error", "error", err)
			b.setErrorState()
			return
		}

		if err := b.sem.Acquire(ctx, 1); err != nil {
			return
		}
		seq := atomic.AddInt64(&b.seq, 1)
		chunk := StreamChunk{
			Data:       block,
			Timestamp:  b.clock(),
			Sequence:   seq,
			Kind:       b.kind,
			DurationMs: b.cfg.ChunkDurationMs,
		}

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer b.sem.Release(1)
			b.enqueue(chunk)
		}()
	}
}

// enqueue applies the admission policy: append if there is room;
// otherwise apply drop_on_overflow.
func (b *FastStreamBuffer) enqueue(chunk StreamChunk) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	var overflowed bool
	var dropped StreamChunk
	if len(b.chunks) < b.cfg.MaxSize {
		b.chunks = append(b.chunks, chunk)
	} else if b.cfg.DropOnOverflow {
		dropped = b.chunks[0]
		b.chunks = append(b.chunks[1:], chunk)
		overflowed = true
	} else {
		dropped = chunk
		overflowed = true
	}
	b.stats.ChunksProduced++
	if overflowed {
		b.stats.ChunksDropped++
		b.stats.Overflows++
	}
	level := len(b.chunks)
	old, newState, isNewUnderrun := b.applyLevelTransitionLocked(level)
	if isNewUnderrun {
		b.stats.Underruns++
	}
	statsSnapshot := b.stats
	b.mu.Unlock()

	if overflowed {
		b.fireOverflow(chunk, dropped)
	}
	if old != newState {
		b.fireState(old, newState)
	}
	b.fireStats(statsSnapshot)
}

// applyLevelTransitionLocked advances the state machine for the observed
// level. Must be called with b.mu held.
func (b *FastStreamBuffer) applyLevelTransitionLocked(level int) (old, new State, isNewUnderrun bool) {
	old = b.state
	switch b.state {
	case StateFilling:
		if level >= b.cfg.MinSize {
			b.state = StateReady
		}
	case StateReady:
		if level >= b.cfg.TargetSize {
			b.state = StateStreaming
		}
	case StateStreaming:
		if level <= b.cfg.UnderrunThreshold {
			b.state = StateUnderrun
			isNewUnderrun = true
		}
	case StateUnderrun:
		if level >= b.cfg.TargetSize {
			b.state = StateStreaming
		}
	}
	return old, b.state, isNewUnderrun
}

func (b *FastStreamBuffer) dequeueLocked() (StreamChunk, bool) {
	if len(b.chunks) == 0 {
		return StreamChunk{}, false
	}
	var c StreamChunk
	if b.cfg.PrioritizeRecent {
		last := len(b.chunks) - 1
		c = b.chunks[last]
		b.chunks = b.chunks[:last]
	} else {
		c = b.chunks[0]
		b.chunks = b.chunks[1:]
	}
	return c, true
}

func (b *FastStreamBuffer) consumerLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		// Hold delivery until the buffer has pre-filled to min_size.
		if b.state == StateFilling {
			b.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}
		chunk, ok := b.dequeueLocked()
		if !ok {
			level := 0
			old, newState, isNewUnderrun := b.applyLevelTransitionLocked(level)
			if isNewUnderrun {
				b.stats.Underruns++
			}
			b.mu.Unlock()
			if old != newState {
				b.fireState(old, newState)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}

		level := len(b.chunks)
		old, newState, isNewUnderrun := b.applyLevelTransitionLocked(level)
		if isNewUnderrun {
			b.stats.Underruns++
		}
		b.stats.ChunksConsumed++
		health := b.healthPercentLocked()
		avgLatency := b.stats.AvgLatencyMs
		adaptive := b.cfg.AdaptiveQuality
		maxLatency := b.cfg.MaxLatencyMs
		b.mu.Unlock()

		if old != newState {
			b.fireState(old, newState)
		}

		now := b.clock()
		ageMs := chunk.AgeMs(now)
		if ageMs > float64(maxLatency) {
			b.logger.Warnw("chunk exceeded max latency", "age_ms", ageMs, "max_latency_ms", maxLatency, "sequence", chunk.Sequence)
		}

		if adaptive {
			lvl := b.qc.level(health, avgLatency)
			if ageMs > float64(maxLatency) {
				lvl = QualityLow
			}
			degraded, err := degrade(chunk, lvl.degradeRatio())
			if err != nil {
				b.logger.Warnw("quality adapter failed, forwarding original chunk", "error", err)
				degraded = chunk
			}
			if degraded.Metadata == nil {
				degraded.Metadata = make(map[string]any, 1)
			}
			degraded.Metadata["quality_level"] = lvl.String()
			chunk = degraded
		}

		b.mu.Lock()
		b.stats.AvgLatencyMs = ema(b.stats.AvgLatencyMs, ageMs, 0.1)
		b.stats.BufferHealthPercent = b.healthPercentLocked()
		statsSnapshot := b.stats
		b.mu.Unlock()

		b.fireChunk(chunk)
		b.fireStats(statsSnapshot)
	}
}

func ema(prev, sample, alpha float64) float64 {
	if prev == 0 {
		return sample
	}
	return alpha*sample + (1-alpha)*prev
}

func (b *FastStreamBuffer) fireChunk(c StreamChunk) {
	b.mu.Lock()
	cbs := append([]ChunkCallback(nil), b.chunkCbs...)
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	for _, cb := range cbs {
		cb(c)
	}
}

func (b *FastStreamBuffer) fireState(old, new State) {
	b.mu.Lock()
	cbs := append([]StateCallback(nil), b.stateCbs...)
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	for _, cb := range cbs {
		cb(old, new)
	}
}

func (b *FastStreamBuffer) fireStats(s Stats) {
	b.mu.Lock()
	cbs := append([]StatsCallback(nil), b.statsCbs...)
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	for _, cb := range cbs {
		cb(s)
	}
}

func (b *FastStreamBuffer) fireOverflow(incoming, dropped StreamChunk) {
	b.mu.Lock()
	cbs := append([]OverflowCallback(nil), b.overflowCbs...)
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	for _, cb := range cbs {
		cb(incoming, dropped)
	}
}
