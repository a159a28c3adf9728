package streaming

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TgCaller/TgCaller/internal/logging"
)

// sliceSource feeds a fixed sequence of blocks with a fixed spacing, then
// returns io.EOF.
type sliceSource struct {
	blocks  [][]byte
	spacing time.Duration
	idx     int
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, error) {
	if s.idx >= len(s.blocks) {
		return nil, io.EOF
	}
	if s.spacing > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.spacing):
		}
	}
	b := s.blocks[s.idx]
	s.idx++
	return b, nil
}

// blockSource never produces; used when the test drives enqueue directly.
type blockSource struct{}

func (blockSource) Next(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testLogger() logging.Logger { return logging.NewNop() }

// TestBasicFlow exercises scenario S1: a buffer with max_size=4,
// min_size=2, target_size=3 visits idle -> filling -> ready while
// producing "A", "B", "C" and dequeues them in order with no underruns or
// overflows.
func TestBasicFlow(t *testing.T) {
	cfg := BufferConfig{
		MaxSize: 4, MinSize: 2, TargetSize: 3,
		ChunkDurationMs: 20, MaxLatencyMs: 500, UnderrunThreshold: 0,
		AdaptiveQuality: false, DropOnOverflow: true, PrioritizeRecent: false,
		MaxConcurrentChunks: 1,
	}
	buf, err := NewFastStreamBuffer("b1", cfg, KindAudio, testLogger())
	require.NoError(t, err)

	var statesMu sync.Mutex
	var states []State
	buf.OnState(func(old, new State) {
		statesMu.Lock()
		states = append(states, new)
		statesMu.Unlock()
	})

	var chunksMu sync.Mutex
	var got [][]byte
	done := make(chan struct{})
	buf.OnChunk(func(c StreamChunk) {
		chunksMu.Lock()
		got = append(got, c.Data)
		n := len(got)
		chunksMu.Unlock()
		if n == 3 {
			close(done)
		}
	})

	src := &sliceSource{blocks: [][]byte{[]byte("A"), []byte("B"), []byte("C")}, spacing: 10 * time.Millisecond}
	require.NoError(t, buf.Start(context.Background(), src))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for 3 chunks")
	}
	buf.Stop()

	chunksMu.Lock()
	assert.Equal(t, [][]byte{[]byte("A"), []byte("B"), []byte("C")}, got)
	chunksMu.Unlock()

	info := buf.Info()
	assert.Zero(t, info.Stats.Underruns)
	assert.Zero(t, info.Stats.Overflows)

	statesMu.Lock()
	assert.Contains(t, states, StateFilling)
	assert.Contains(t, states, StateReady)
	statesMu.Unlock()
}

// TestOverflowRecentPriority exercises scenario S2: max_size=2,
// prioritize_recent=true, drop_on_overflow=true, no consumer draining
// while four chunks are produced. The buffer retains "C","D"; two chunks
// are dropped as overflow. Starting a consumer afterward dequeues "D"
// then "C".
func TestOverflowRecentPriority(t *testing.T) {
	cfg := BufferConfig{
		MaxSize: 2, MinSize: 1, TargetSize: 2,
		ChunkDurationMs: 20, MaxLatencyMs: 500, UnderrunThreshold: 0,
		AdaptiveQuality: false, DropOnOverflow: true, PrioritizeRecent: true,
		MaxConcurrentChunks: 1,
	}
	buf, err := NewFastStreamBuffer("b2", cfg, KindAudio, testLogger())
	require.NoError(t, err)

	// Enqueue directly and synchronously to avoid racing the consumer
	// loop a real Start() would spin up; this isolates the admission
	// policy under test from the dequeue side.
	buf.seq = 0
	for i, data := range [][]byte{[]byte("A"), []byte("B"), []byte("C"), []byte("D")} {
		buf.seq = int64(i + 1)
		buf.enqueue(StreamChunk{Data: data, Timestamp: time.Now(), Sequence: buf.seq, Kind: KindAudio})
	}

	info := buf.Info()
	assert.EqualValues(t, 2, info.Stats.ChunksDropped)
	assert.EqualValues(t, 2, info.Stats.Overflows)

	buf.mu.Lock()
	remaining := make([][]byte, len(buf.chunks))
	for i, c := range buf.chunks {
		remaining[i] = c.Data
	}
	buf.mu.Unlock()
	assert.ElementsMatch(t, [][]byte{[]byte("C"), []byte("D")}, remaining)

	first, ok := buf.dequeueLockedForTest()
	require.True(t, ok)
	second, ok := buf.dequeueLockedForTest()
	require.True(t, ok)
	assert.Equal(t, []byte("D"), first.Data)
	assert.Equal(t, []byte("C"), second.Data)
}

func (b *FastStreamBuffer) dequeueLockedForTest() (StreamChunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dequeueLocked()
}

// TestMaxSizeOneAlwaysOverflows exercises boundary B1: with max_size=1,
// every produced chunk not immediately consumed triggers an overflow
// event.
func TestMaxSizeOneAlwaysOverflows(t *testing.T) {
	cfg := BufferConfig{
		MaxSize: 1, MinSize: 1, TargetSize: 1,
		ChunkDurationMs: 20, MaxLatencyMs: 500, UnderrunThreshold: 0,
		AdaptiveQuality: false, DropOnOverflow: true, PrioritizeRecent: false,
		MaxConcurrentChunks: 1,
	}
	buf, err := NewFastStreamBuffer("b3", cfg, KindAudio, testLogger())
	require.NoError(t, err)

	var overflowCount int
	var mu sync.Mutex
	buf.OnOverflow(func(incoming, dropped StreamChunk) {
		mu.Lock()
		overflowCount++
		mu.Unlock()
	})

	buf.enqueue(StreamChunk{Data: []byte("A"), Timestamp: time.Now(), Sequence: 1, Kind: KindAudio})
	buf.enqueue(StreamChunk{Data: []byte("B"), Timestamp: time.Now(), Sequence: 2, Kind: KindAudio})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, overflowCount)
}
