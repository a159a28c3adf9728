package tgcaller

import (
	"time"

	"github.com/TgCaller/TgCaller/internal/streaming"
)

// EngineConfig governs the shared fleet-level resources every call
// lifecycle draws on: the buffer manager's budget and the logger's
// construction options.
type EngineConfig struct {
	MaxBuffers           int
	MemoryLimitMB        float64
	MonitorInterval      time.Duration
	OptimizationInterval time.Duration
	AutoOptimize         bool

	LoggerName  string
	LoggerLevel string
	LoggerPath  string

	PeerCacheCapacity int64
}

// DefaultEngineConfig mirrors BufferManager's own defaults plus a
// moderate peer cache capacity.
func DefaultEngineConfig() EngineConfig {
	mgr := streaming.DefaultManagerConfig()
	return EngineConfig{
		MaxBuffers:           mgr.MaxBuffers,
		MemoryLimitMB:        mgr.MemoryLimitMB,
		MonitorInterval:      mgr.MonitorInterval,
		OptimizationInterval: mgr.OptimizationInterval,
		AutoOptimize:         mgr.AutoOptimize,
		LoggerName:           "tgcaller",
		LoggerLevel:          "info",
		PeerCacheCapacity:    10000,
	}
}

// Option configures an Engine at construction time.
type Option func(*EngineConfig)

// WithMaxBuffers overrides the fleet's concurrent buffer ceiling.
func WithMaxBuffers(n int) Option { return func(c *EngineConfig) { c.MaxBuffers = n } }

// WithMemoryLimitMB overrides the fleet's soft memory ceiling.
func WithMemoryLimitMB(mb float64) Option { return func(c *EngineConfig) { c.MemoryLimitMB = mb } }

// WithMonitorInterval overrides the telemetry cadence.
func WithMonitorInterval(d time.Duration) Option {
	return func(c *EngineConfig) { c.MonitorInterval = d }
}

// WithOptimizationInterval overrides the minimum spacing between
// auto-tuning passes.
func WithOptimizationInterval(d time.Duration) Option {
	return func(c *EngineConfig) { c.OptimizationInterval = d }
}

// WithAutoOptimize enables or disables autonomic buffer tuning.
func WithAutoOptimize(enabled bool) Option { return func(c *EngineConfig) { c.AutoOptimize = enabled } }

// WithLoggerName sets the root logger name.
func WithLoggerName(name string) Option { return func(c *EngineConfig) { c.LoggerName = name } }

// WithLoggerLevel sets the minimum enabled log level.
func WithLoggerLevel(level string) Option { return func(c *EngineConfig) { c.LoggerLevel = level } }

// WithLoggerPath additionally writes log output under the given directory.
func WithLoggerPath(path string) Option { return func(c *EngineConfig) { c.LoggerPath = path } }

// WithPeerCacheCapacity overrides the peer cache's approximate entry
// budget.
func WithPeerCacheCapacity(n int64) Option { return func(c *EngineConfig) { c.PeerCacheCapacity = n } }

func (c EngineConfig) toManagerConfig() streaming.ManagerConfig {
	return streaming.ManagerConfig{
		MaxBuffers:           c.MaxBuffers,
		MemoryLimitMB:        c.MemoryLimitMB,
		MonitorInterval:      c.MonitorInterval,
		OptimizationInterval: c.OptimizationInterval,
		AutoOptimize:         c.AutoOptimize,
	}
}
