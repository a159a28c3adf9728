package streaming

import "fmt"

// BufferConfig governs one FastStreamBuffer. Zero value is invalid; use
// DefaultBufferConfig or one of the priority-derived constructors.
type BufferConfig struct {
	MaxSize             int
	MinSize             int
	TargetSize          int
	ChunkDurationMs     int
	MaxLatencyMs        int
	UnderrunThreshold   int
	AdaptiveQuality     bool
	DropOnOverflow      bool
	PrioritizeRecent    bool
	MaxConcurrentChunks int
}

// DefaultBufferConfig mirrors the original implementation's general-purpose
// defaults, suitable when a caller supplies no explicit config and no
// priority-based synthesis applies.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		MaxSize:             50,
		MinSize:             5,
		TargetSize:          20,
		ChunkDurationMs:     20,
		MaxLatencyMs:        100,
		UnderrunThreshold:   2,
		AdaptiveQuality:     true,
		DropOnOverflow:      true,
		PrioritizeRecent:    false,
		MaxConcurrentChunks: 4,
	}
}

// Validate enforces the buffer config invariant:
// 0 < min_size <= target_size <= max_size, max_latency_ms > 0.
func (c BufferConfig) Validate() error {
	if c.MinSize <= 0 {
		return fmt.Errorf("min_size must be positive, got %d", c.MinSize)
	}
	if c.TargetSize < c.MinSize {
		return fmt.Errorf("target_size (%d) must be >= min_size (%d)", c.TargetSize, c.MinSize)
	}
	if c.MaxSize < c.TargetSize {
		return fmt.Errorf("max_size (%d) must be >= target_size (%d)", c.MaxSize, c.TargetSize)
	}
	if c.MaxLatencyMs <= 0 {
		return fmt.Errorf("max_latency_ms must be positive, got %d", c.MaxLatencyMs)
	}
	if c.MaxConcurrentChunks <= 0 {
		return fmt.Errorf("max_concurrent_chunks must be positive, got %d", c.MaxConcurrentChunks)
	}
	return nil
}

// Priority orders buffers for eviction. Critical is never evicted.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ConfigForPriority synthesizes a BufferConfig when the caller supplies
// none at buffer creation time. Critical streams get the largest buffer
// (max_size 100) with the shortest chunks and tightest latency (10ms,
// 50ms); low-priority streams get the smallest buffer (max_size 30) with
// the longest chunks and loosest latency (30ms, 200ms).
func ConfigForPriority(p Priority) BufferConfig {
	switch p {
	case PriorityCritical:
		return BufferConfig{
			MaxSize: 100, MinSize: 10, TargetSize: 40,
			ChunkDurationMs: 10, MaxLatencyMs: 50, UnderrunThreshold: 3,
			AdaptiveQuality: true, DropOnOverflow: true, PrioritizeRecent: true,
			MaxConcurrentChunks: 8,
		}
	case PriorityHigh:
		return BufferConfig{
			MaxSize: 70, MinSize: 8, TargetSize: 30,
			ChunkDurationMs: 15, MaxLatencyMs: 80, UnderrunThreshold: 3,
			AdaptiveQuality: true, DropOnOverflow: true, PrioritizeRecent: false,
			MaxConcurrentChunks: 6,
		}
	case PriorityLow:
		return BufferConfig{
			MaxSize: 30, MinSize: 3, TargetSize: 10,
			ChunkDurationMs: 30, MaxLatencyMs: 200, UnderrunThreshold: 1,
			AdaptiveQuality: true, DropOnOverflow: true, PrioritizeRecent: false,
			MaxConcurrentChunks: 2,
		}
	default: // PriorityNormal and unrecognized values
		return DefaultBufferConfig()
	}
}

// State is the FastStreamBuffer lifecycle state.
type State int

const (
	StateIdle State = iota
	StateFilling
	StateReady
	StateStreaming
	StateUnderrun
	StateOverflow
	StateError
)

func (s State) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateUnderrun:
		return "underrun"
	case StateOverflow:
		return "overflow"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}
