package streaming

import (
	"context"
	"sync"
	"time"

	"github.com/TgCaller/TgCaller/internal/logging"
)

// ManagerConfig governs a BufferManager fleet.
type ManagerConfig struct {
	MaxBuffers            int
	MemoryLimitMB         float64
	MonitorInterval       time.Duration
	OptimizationInterval  time.Duration
	AutoOptimize          bool
}

// DefaultManagerConfig returns the fleet defaults named in the external
// configuration table: a 2s telemetry cadence and a 30s auto-tuning floor.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxBuffers:           32,
		MemoryLimitMB:        512,
		MonitorInterval:      2 * time.Second,
		OptimizationInterval: 30 * time.Second,
		AutoOptimize:         true,
	}
}

type managedBuffer struct {
	buffer   *FastStreamBuffer
	priority Priority
	metadata map[string]any
}

// AggregateStats is the fleet-wide telemetry BufferManager publishes on
// every monitoring tick.
type AggregateStats struct {
	TotalBuffers     int
	HealthyBuffers   int
	UnderrunBuffers  int
	OverflowBuffers  int
	AvgHealthPercent float64
	AvgLatencyMs     float64
	AvgThroughput    float64
	EstimatedMemMB   float64
}

// AggregateCallback observes a published AggregateStats snapshot.
type AggregateCallback func(AggregateStats)

// BufferManager admits, evicts and auto-tunes a fleet of FastStreamBuffers
// keyed by opaque string buffer_id.
type BufferManager struct {
	cfg    ManagerConfig
	logger logging.Logger

	mu      sync.Mutex
	buffers map[string]*managedBuffer

	statsCbs []AggregateCallback

	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	lastOptimization time.Time
	clock            func() time.Time
}

// NewBufferManager builds a BufferManager from cfg.
func NewBufferManager(cfg ManagerConfig, logger logging.Logger) *BufferManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BufferManager{
		cfg:     cfg,
		logger:  logger.Named("buffer_manager"),
		buffers: make(map[string]*managedBuffer),
		clock:   time.Now,
	}
}

// OnStats registers a subscriber for aggregate fleet statistics.
func (m *BufferManager) OnStats(cb AggregateCallback) {
	m.mu.Lock()
	m.statsCbs = append(m.statsCbs, cb)
	m.mu.Unlock()
}

// CreateBuffer admits a new buffer under id. If the fleet is at capacity,
// it attempts to evict the lowest-priority strictly-below-critical buffer
// before refusing. Returns nil, nil when admission is refused — not an
// error, matching the contract's `Buffer | null` return.
func (m *BufferManager) CreateBuffer(id string, cfg *BufferConfig, priority Priority, metadata map[string]any, kind Kind) (*FastStreamBuffer, error) {
	m.mu.Lock()
	if _, exists := m.buffers[id]; exists {
		m.mu.Unlock()
		return nil, errAlreadyExists(id)
	}
	if len(m.buffers) >= m.cfg.MaxBuffers {
		if !m.freeLowestPriorityLocked() {
			m.mu.Unlock()
			return nil, nil
		}
	}

	var resolved BufferConfig
	if cfg != nil {
		resolved = *cfg
	} else {
		resolved = ConfigForPriority(priority)
	}
	m.mu.Unlock()

	buf, err := NewFastStreamBuffer(id, resolved, kind, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if len(m.buffers) >= m.cfg.MaxBuffers {
		m.mu.Unlock()
		return nil, nil
	}
	m.buffers[id] = &managedBuffer{buffer: buf, priority: priority, metadata: metadata}
	m.mu.Unlock()
	return buf, nil
}

// freeLowestPriorityLocked finds and removes the lowest-priority buffer
// strictly below critical. Must be called with m.mu held. It stops the
// evicted buffer after releasing the lock would be unsafe for reentrancy,
// so it spawns the stop asynchronously.
func (m *BufferManager) freeLowestPriorityLocked() bool {
	var victimID string
	victimPriority := PriorityCritical
	found := false
	for id, mb := range m.buffers {
		if mb.priority >= PriorityCritical {
			continue
		}
		if !found || mb.priority < victimPriority {
			victimID = id
			victimPriority = mb.priority
			found = true
		}
	}
	if !found {
		return false
	}
	victim := m.buffers[victimID]
	delete(m.buffers, victimID)
	go victim.buffer.Stop()
	return true
}

// RemoveBuffer stops and removes the buffer identified by id. Returns
// false if no such buffer exists.
func (m *BufferManager) RemoveBuffer(id string) bool {
	m.mu.Lock()
	mb, ok := m.buffers[id]
	if ok {
		delete(m.buffers, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	mb.buffer.Stop()
	return true
}

// GetBuffer returns the buffer identified by id, if any.
func (m *BufferManager) GetBuffer(id string) (*FastStreamBuffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mb, ok := m.buffers[id]
	if !ok {
		return nil, false
	}
	return mb.buffer, true
}

// ListBuffers returns the ids of every currently managed buffer.
func (m *BufferManager) ListBuffers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	return ids
}

// GetBufferInfo returns the snapshot of the buffer identified by id.
func (m *BufferManager) GetBufferInfo(id string) (Info, bool) {
	buf, ok := m.GetBuffer(id)
	if !ok {
		return Info{}, false
	}
	return buf.Info(), true
}

// StartMonitoring launches the periodic telemetry and auto-tuning loop.
func (m *BufferManager) StartMonitoring(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	mctx, cancel := context.WithCancel(ctx)
	m.ctx = mctx
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.monitorLoop(mctx)
}

// StopMonitoring halts the periodic loop.
func (m *BufferManager) StopMonitoring() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// CleanupAll stops and removes every managed buffer.
func (m *BufferManager) CleanupAll() {
	m.StopMonitoring()
	m.mu.Lock()
	victims := make([]*managedBuffer, 0, len(m.buffers))
	for _, mb := range m.buffers {
		victims = append(victims, mb)
	}
	m.buffers = make(map[string]*managedBuffer)
	m.mu.Unlock()
	for _, mb := range victims {
		mb.buffer.Stop()
	}
}

func (m *BufferManager) monitorLoop(ctx context.Context) {
	defer m.wg.Done()
	interval := m.cfg.MonitorInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *BufferManager) tick() {
	agg, infos := m.collectLocked()
	m.fireStats(agg)

	if !m.cfg.AutoOptimize {
		return
	}
	now := m.clock()
	if m.lastOptimization.IsZero() {
		m.lastOptimization = now
	}
	if now.Sub(m.lastOptimization) < m.cfg.OptimizationInterval {
		return
	}

	needsOptimization := agg.AvgHealthPercent < 60 ||
		agg.AvgLatencyMs > 150 ||
		agg.UnderrunBuffers > 0 ||
		agg.EstimatedMemMB > m.cfg.MemoryLimitMB

	if needsOptimization {
		m.optimize(infos)
		m.lastOptimization = now
	}
}

type bufferSnapshot struct {
	id       string
	priority Priority
	buffer   *FastStreamBuffer
	info     Info
}

func (m *BufferManager) collectLocked() (AggregateStats, []bufferSnapshot) {
	m.mu.Lock()
	snaps := make([]bufferSnapshot, 0, len(m.buffers))
	for id, mb := range m.buffers {
		snaps = append(snaps, bufferSnapshot{id: id, priority: mb.priority, buffer: mb.buffer, info: mb.buffer.Info()})
	}
	m.mu.Unlock()

	var agg AggregateStats
	agg.TotalBuffers = len(snaps)
	var sumHealth, sumLatency, sumThroughput float64
	for _, s := range snaps {
		switch {
		case s.info.Stats.BufferHealthPercent > 70:
			agg.HealthyBuffers++
		case s.info.State == StateUnderrun:
			agg.UnderrunBuffers++
		case s.info.State == StateOverflow:
			agg.OverflowBuffers++
		}
		sumHealth += s.info.Stats.BufferHealthPercent
		sumLatency += s.info.Stats.AvgLatencyMs
		sumThroughput += s.info.Stats.ThroughputEstimate
		agg.EstimatedMemMB += float64(s.info.Level) * 0.1
	}
	if len(snaps) > 0 {
		agg.AvgHealthPercent = sumHealth / float64(len(snaps))
		agg.AvgLatencyMs = sumLatency / float64(len(snaps))
		agg.AvgThroughput = sumThroughput / float64(len(snaps))
	}
	return agg, snaps
}

// optimize applies the deterministic per-buffer tuning rules.
func (m *BufferManager) optimize(snaps []bufferSnapshot) {
	for _, s := range snaps {
		cfg := s.buffer.Config()
		changed := false

		switch {
		case s.info.Stats.BufferHealthPercent < 50:
			cfg.MaxSize = minInt(cfg.MaxSize+20, 200)
			cfg.TargetSize = int(float64(cfg.MaxSize) * 0.6)
			changed = true
		case s.info.Stats.BufferHealthPercent > 90 && s.priority == PriorityLow:
			cfg.MaxSize = maxInt(cfg.MaxSize-10, 20)
			changed = true
		}

		if s.info.Stats.AvgLatencyMs > 200 {
			cfg.MaxLatencyMs = minInt(cfg.MaxLatencyMs+20, 300)
			cfg.ChunkDurationMs = minInt(cfg.ChunkDurationMs+5, 50)
			changed = true
		}

		if changed {
			if cfg.TargetSize > cfg.MaxSize {
				cfg.TargetSize = cfg.MaxSize
			}
			if cfg.MinSize > cfg.TargetSize {
				cfg.MinSize = cfg.TargetSize
			}
			s.buffer.UpdateConfig(cfg)
			m.logger.Debugw("optimized buffer", "id", s.id, "max_size", cfg.MaxSize, "target_size", cfg.TargetSize, "max_latency_ms", cfg.MaxLatencyMs)
		}
	}
}

func (m *BufferManager) fireStats(agg AggregateStats) {
	m.mu.Lock()
	cbs := append([]AggregateCallback(nil), m.statsCbs...)
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(agg)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
