// Package tgcaller implements the core of a real-time group-call media
// engine: a per-chat call lifecycle controller coupled to a bounded,
// adaptive streaming pipeline that feeds a transport boundary.
package tgcaller

import (
	"context"
	"sync"

	"github.com/TgCaller/TgCaller/internal/call"
	"github.com/TgCaller/TgCaller/internal/errs"
	"github.com/TgCaller/TgCaller/internal/eventbus"
	"github.com/TgCaller/TgCaller/internal/logging"
	"github.com/TgCaller/TgCaller/internal/peercache"
	"github.com/TgCaller/TgCaller/internal/retry"
	"github.com/TgCaller/TgCaller/internal/streaming"
	"github.com/TgCaller/TgCaller/internal/transport"
)

// Re-exported so host applications can build configs and sources without
// reaching into internal packages.
type (
	AudioConfig  = call.AudioConfig
	VideoConfig  = call.VideoConfig
	Participant  = call.Participant
	StreamEnded  = call.StreamEnded
	SourceProducer = streaming.SourceProducer
	TransportClient = transport.Client
	PeerResolver = peercache.Resolver
	Update       = eventbus.Update
	Filter       = eventbus.Filter
	HandlerID    = eventbus.HandlerID
)

const (
	StreamEndFinished     = call.StreamEndFinished
	StreamEndStopped      = call.StreamEndStopped
	StreamEndErrorReason  = call.StreamEndError
	StreamEndDisconnected = call.StreamEndDisconnected
	StreamEndReplaced     = call.StreamEndReplaced
	StreamEndTimeout      = call.StreamEndTimeout
)

// Engine is the public control surface: it owns the shared buffer fleet,
// retry driver, peer cache and event dispatcher, and multiplexes them
// across one call.Lifecycle per chat.
type Engine struct {
	cfg        EngineConfig
	logger     logging.Logger
	transport  transport.Client
	buffers    *streaming.BufferManager
	retries    *retry.Driver
	dispatcher *eventbus.Dispatcher
	peers      *peercache.Cache

	mu    sync.Mutex
	calls map[int64]*call.Lifecycle

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds an Engine bound to tc for signalling and resolver for peer
// lookups, applying any Options over DefaultEngineConfig. Construction
// errors (invalid config) are returned directly, never panicked.
func New(tc transport.Client, resolver peercache.Resolver, opts ...Option) (*Engine, error) {
	if tc == nil {
		return nil, errs.Config("transport client is required", nil)
	}
	cfg := DefaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxBuffers <= 0 {
		return nil, errs.Config("max_buffers must be positive", nil)
	}

	logger, err := logging.NewApplicationLogger(
		logging.Name(cfg.LoggerName),
		logging.Level(cfg.LoggerLevel),
		logging.Path(cfg.LoggerPath),
	)
	if err != nil {
		return nil, errs.Config("failed to build logger", err)
	}

	peers, err := peercache.New(resolver, cfg.PeerCacheCapacity, logger)
	if err != nil {
		return nil, errs.Config("failed to build peer cache", err)
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		transport:  tc,
		buffers:    streaming.NewBufferManager(cfg.toManagerConfig(), logger),
		retries:    retry.NewDriver(logger),
		dispatcher: eventbus.New(logger),
		peers:      peers,
		calls:      make(map[int64]*call.Lifecycle),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.ctx = ctx
	e.cancel = cancel
	e.buffers.StartMonitoring(ctx)
	return e, nil
}

// Close stops the buffer fleet's monitoring loop and every managed
// buffer, and releases the peer cache. It does not stop call lifecycles'
// event subscriptions or reconnect monitors, nor disconnect live transport
// sessions; Leave stops both for a chat.
func (e *Engine) Close() {
	e.cancel()
	e.buffers.CleanupAll()
	e.peers.Close()
}

func (e *Engine) lifecycle(chatID int64) *call.Lifecycle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lc, ok := e.calls[chatID]; ok {
		return lc
	}
	lc := call.NewLifecycle(chatID, e.transport, e.buffers, e.retries, e.dispatcher, e.logger)
	e.calls[chatID] = lc
	return lc
}

// Join connects chat, creating its session if needed, retrying on
// failure per the connection policy. A nil video means an audio-only
// call; a nil audio falls back to call.DefaultAudioConfig.
func (e *Engine) Join(ctx context.Context, chatID int64, audio *AudioConfig, video *VideoConfig) error {
	return e.lifecycle(chatID).Join(ctx, audio, video)
}

// Leave ends chat's call, releasing its resources.
func (e *Engine) Leave(ctx context.Context, chatID int64) error {
	return e.lifecycle(chatID).Leave(ctx)
}

// Play attaches source to chat's call, joining first if necessary. A
// nil video plays audio-only.
func (e *Engine) Play(ctx context.Context, chatID int64, source SourceProducer, audio *AudioConfig, video *VideoConfig) error {
	return e.lifecycle(chatID).Play(ctx, source, audio, video)
}

// Pause suspends chat's active stream.
func (e *Engine) Pause(chatID int64) error { return e.lifecycle(chatID).Pause() }

// Resume restores chat's paused stream.
func (e *Engine) Resume(chatID int64) error { return e.lifecycle(chatID).Resume() }

// Stop ends chat's current stream without leaving the call.
func (e *Engine) Stop(chatID int64) error { return e.lifecycle(chatID).Stop(call.StreamEndStopped) }

// Seek records a logical stream position marker for chat.
func (e *Engine) Seek(chatID int64, pos int) error { return e.lifecycle(chatID).Seek(pos) }

// SetVolume clamps and stores chat's playback volume.
func (e *Engine) SetVolume(chatID int64, v float64) { e.lifecycle(chatID).SetVolume(v) }

// Mute and Unmute toggle chat's self-mute flag.
func (e *Engine) Mute(chatID int64)   { e.lifecycle(chatID).Mute() }
func (e *Engine) Unmute(chatID int64) { e.lifecycle(chatID).Unmute() }

// OnStreamEnd registers handler for stream-end events, optionally scoped
// by an additional filter.
func (e *Engine) OnStreamEnd(handler func(StreamEnded), filter Filter, priority int) HandlerID {
	f := eventbus.And(eventbus.KindIs(eventbus.UpdateStreamEnd))
	if filter != nil {
		f = eventbus.And(f, filter)
	}
	return e.dispatcher.AddHandler(func(u Update) {
		if se, ok := u.Payload.(StreamEnded); ok {
			handler(se)
		}
	}, f, priority)
}

// OnKicked registers handler for forced-removal events.
func (e *Engine) OnKicked(handler func(chatID int64), filter Filter, priority int) HandlerID {
	f := eventbus.And(eventbus.KindIs(eventbus.UpdateKicked))
	if filter != nil {
		f = eventbus.And(f, filter)
	}
	return e.dispatcher.AddHandler(func(u Update) { handler(u.ChatID) }, f, priority)
}

// OnLeft registers handler for normal call-ended events.
func (e *Engine) OnLeft(handler func(chatID int64), filter Filter, priority int) HandlerID {
	f := eventbus.And(eventbus.KindIs(eventbus.UpdateCallEnded))
	if filter != nil {
		f = eventbus.And(f, filter)
	}
	return e.dispatcher.AddHandler(func(u Update) { handler(u.ChatID) }, f, priority)
}

// OnError registers handler for error events.
func (e *Engine) OnError(handler func(chatID int64, err error), filter Filter, priority int) HandlerID {
	f := eventbus.And(eventbus.KindIs(eventbus.UpdateError))
	if filter != nil {
		f = eventbus.And(f, filter)
	}
	return e.dispatcher.AddHandler(func(u Update) {
		if err, ok := u.Payload.(error); ok {
			handler(u.ChatID, err)
		}
	}, f, priority)
}

// OnCustomUpdate registers a handler invoked for every update of
// eventbus.UpdateCustom kind. Each call adds another handler; handlers
// registered earlier stay registered until removed with RemoveHandler.
func (e *Engine) OnCustomUpdate(handler func(Update)) HandlerID {
	return e.dispatcher.AddHandler(handler, eventbus.KindIs(eventbus.UpdateCustom), 0)
}

// AddHandler registers a raw handler with an optional filter and
// priority, for callers that need the full Update shape.
func (e *Engine) AddHandler(handler func(Update), filter Filter, priority int) HandlerID {
	return e.dispatcher.AddHandler(handler, filter, priority)
}

// RemoveHandler unregisters a previously added handler.
func (e *Engine) RemoveHandler(id HandlerID) { e.dispatcher.RemoveHandler(id) }

// ActiveCalls returns the chat ids with a live (non-idle, non-ended)
// session.
func (e *Engine) ActiveCalls() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(e.calls))
	for id, lc := range e.calls {
		s := lc.Session()
		if s.State != call.StateIdle && s.State != call.StateEnded {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsConnected reports whether chatID has a session in state connected or
// beyond.
func (e *Engine) IsConnected(chatID int64) bool {
	e.mu.Lock()
	lc, ok := e.calls[chatID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	switch lc.Session().State {
	case call.StateConnected, call.StateActive, call.StatePaused:
		return true
	default:
		return false
	}
}

// BufferInfo returns the snapshot of the buffer identified by id.
func (e *Engine) BufferInfo(id string) (streaming.Info, bool) {
	return e.buffers.GetBufferInfo(id)
}

// GlobalStats returns the number of tracked calls, the peer cache's
// hit/miss/error counters, and the ids of the managed buffers. It returns
// immediately and does not include the buffer fleet's aggregate
// telemetry.
func (e *Engine) GlobalStats() GlobalStats {
	e.mu.Lock()
	callCount := len(e.calls)
	e.mu.Unlock()
	return GlobalStats{
		Calls:      callCount,
		PeerCache:  e.peers.Stats(),
		BufferIDs:  e.buffers.ListBuffers(),
	}
}

// GlobalStats is the snapshot returned by Engine.GlobalStats.
type GlobalStats struct {
	Calls     int
	PeerCache peercache.Stats
	BufferIDs []string
}

// ResolvePeer resolves peer through the shared cache.
func (e *Engine) ResolvePeer(ctx context.Context, peerID string) (peercache.Descriptor, error) {
	return e.peers.Resolve(ctx, peerID)
}
