package call

import (
	"context"
	"sync"
	"time"

	"github.com/TgCaller/TgCaller/internal/errs"
	"github.com/TgCaller/TgCaller/internal/eventbus"
	"github.com/TgCaller/TgCaller/internal/logging"
	"github.com/TgCaller/TgCaller/internal/retry"
	"github.com/TgCaller/TgCaller/internal/streaming"
	"github.com/TgCaller/TgCaller/internal/transport"
)

// Lifecycle owns one CallSession end to end: connect, reconnect, stream
// attachment, participant bookkeeping and teardown. Each chat id is owned
// by exactly one Lifecycle.
type Lifecycle struct {
	chatID     int64
	transport  transport.Client
	buffers    *streaming.BufferManager
	retries    *retry.Driver
	dispatcher *eventbus.Dispatcher
	logger     logging.Logger

	mu      sync.Mutex
	session *Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubscribe func()
}

// NewLifecycle builds a Lifecycle for chatID, wired to the shared
// transport client, buffer manager, retry driver and event dispatcher.
func NewLifecycle(chatID int64, tc transport.Client, buffers *streaming.BufferManager, retries *retry.Driver, dispatcher *eventbus.Dispatcher, logger logging.Logger) *Lifecycle {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Lifecycle{
		chatID:     chatID,
		transport:  tc,
		buffers:    buffers,
		retries:    retries,
		dispatcher: dispatcher,
		logger:     logger.Named("call_lifecycle"),
		session:    NewSession(chatID),
	}
}

// Session returns a copy of the lifecycle's current session. Participants
// map is shared and must not be mutated by callers.
func (l *Lifecycle) Session() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.session
}

func (l *Lifecycle) state() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.State
}

func (l *Lifecycle) setState(s State) {
	l.mu.Lock()
	old := l.session.State
	l.session.State = s
	switch s {
	case StateConnected:
		if l.session.ConnectedAt.IsZero() {
			l.session.ConnectedAt = time.Now()
		}
	case StateEnded, StateError:
		if l.session.EndedAt.IsZero() {
			l.session.EndedAt = time.Now()
		}
	}
	l.mu.Unlock()
	if old != s {
		l.logger.Debugw("call state transition", "chat_id", l.chatID, "from", old, "to", s)
	}
}

// Join creates the session, acquires a transport handle, and retries on
// failure per the connection policy. Idempotent when already connected
// or beyond. A nil videoCfg means an audio-only call.
func (l *Lifecycle) Join(ctx context.Context, audioCfg *AudioConfig, videoCfg *VideoConfig) error {
	switch l.state() {
	case StateConnected, StateActive, StatePaused:
		return nil
	case StateEnded, StateError:
		l.mu.Lock()
		l.session = NewSession(l.chatID)
		l.mu.Unlock()
	}

	a := DefaultAudioConfig()
	if audioCfg != nil {
		a = *audioCfg
	}
	if err := a.Validate(); err != nil {
		return errs.Config("invalid audio config", err)
	}
	var v VideoConfig
	hasVideo := videoCfg != nil
	if hasVideo {
		v = *videoCfg
		if err := v.Validate(); err != nil {
			return errs.Config("invalid video config", err)
		}
	}

	l.mu.Lock()
	l.session.AudioCfg = a
	l.session.VideoCfg = v
	l.session.VideoEnabled = hasVideo
	l.mu.Unlock()

	l.setState(StateInitializing)
	l.setState(StateConnecting)

	_, err := l.retries.Do(ctx, l.connectionRetryID(), retry.ConnectionRetryConfig(), func(ctx context.Context) (any, error) {
		return nil, l.transport.Connect(ctx, l.chatID)
	})
	if err != nil {
		l.setState(StateError)
		l.dispatcher.Dispatch(eventbus.Update{Kind: eventbus.UpdateError, ChatID: l.chatID, Payload: err})
		return errs.Timeout("join retries exhausted: " + err.Error())
	}

	l.setState(StateConnected)
	l.startEventSubscription()
	l.startReconnectMonitor()
	return nil
}

func (l *Lifecycle) connectionRetryID() string { return "join:" + intToStr(l.chatID) }

// Leave tears the session down: releases the transport, frees any buffer,
// and finalizes counters. Repeating Leave after it already ran is a no-op
// (L1).
func (l *Lifecycle) Leave(ctx context.Context) error {
	if l.state() == StateEnded {
		return nil
	}
	l.setState(StateEnding)
	l.stopBackground()

	l.mu.Lock()
	streamID := l.session.StreamID
	l.session.StreamID = ""
	l.mu.Unlock()

	if streamID != "" {
		l.buffers.RemoveBuffer(streamID)
	}
	_ = l.transport.Disconnect(ctx, l.chatID)

	l.setState(StateEnded)
	return nil
}

// Play attaches a stream: joining first if necessary, creating a buffer
// via the shared manager, wiring a StreamProcessor over source into it,
// and forwarding its chunk events to transport as frames. A nil
// videoCfg plays audio-only.
func (l *Lifecycle) Play(ctx context.Context, source streaming.SourceProducer, audioCfg *AudioConfig, videoCfg *VideoConfig) error {
	if l.state() != StateConnected && l.state() != StateActive {
		if err := l.Join(ctx, audioCfg, videoCfg); err != nil {
			return err
		}
	}

	kind := streaming.KindAudio
	if videoCfg != nil {
		kind = streaming.KindVideo
	}

	streamID := "stream:" + intToStr(l.chatID)
	buf, err := l.buffers.CreateBuffer(streamID, nil, streaming.PriorityNormal, map[string]any{"chat_id": l.chatID}, kind)
	if err != nil {
		return errs.Media("failed to create stream buffer", err)
	}
	if buf == nil {
		return errs.Media("buffer fleet at capacity", nil)
	}

	buf.OnChunk(func(c streaming.StreamChunk) {
		frame := streaming.Frame{Data: c.Data, Kind: c.Kind, Info: streaming.FrameInfo{TimestampMs: c.Timestamp.UnixMilli()}}
		if err := l.transport.SendFrame(ctx, l.chatID, frame); err != nil {
			l.logger.Warnw("send frame failed", "chat_id", l.chatID, "error", err)
			return
		}
		l.mu.Lock()
		l.session.FramesSent++
		l.session.BytesSent += int64(len(c.Data))
		l.mu.Unlock()
	})

	processor := streaming.NewStreamProcessor(streaming.DefaultProcessorConfig(), l.logger)
	processedSource := processor.Source(ctx, source, kind)

	if err := buf.Start(ctx, processedSource); err != nil {
		l.buffers.RemoveBuffer(streamID)
		return errs.Media("failed to start stream buffer", err)
	}

	l.mu.Lock()
	l.session.StreamID = streamID
	l.session.StreamPosition = 0
	l.mu.Unlock()

	l.setState(StateActive)
	return nil
}

// Pause transitions active -> paused without tearing down the stream.
func (l *Lifecycle) Pause() error {
	if l.state() != StateActive {
		return errs.NotInCall("not playing")
	}
	l.setState(StatePaused)
	return nil
}

// Resume transitions paused -> active, restoring the prior position
// within one chunk duration (L2): position itself was never mutated by
// Pause, so Resume is a pure state transition.
func (l *Lifecycle) Resume() error {
	if l.state() != StatePaused {
		return errs.NotInCall("not paused")
	}
	l.setState(StateActive)
	return nil
}

// Stop ends the current stream but keeps the call connected.
func (l *Lifecycle) Stop(reason StreamEndReason) error {
	l.mu.Lock()
	streamID := l.session.StreamID
	l.session.StreamID = ""
	chatID := l.chatID
	l.mu.Unlock()

	if streamID != "" {
		l.buffers.RemoveBuffer(streamID)
	}
	if l.state() == StateActive || l.state() == StatePaused {
		l.setState(StateConnected)
	}
	l.dispatcher.Dispatch(eventbus.Update{Kind: eventbus.UpdateStreamEnd, ChatID: chatID, Payload: StreamEnded{ChatID: chatID, Reason: reason}})
	return nil
}

// Seek records a logical position marker; the in-progress transcoder, if
// any, is left running (see design notes on open question 3).
func (l *Lifecycle) Seek(pos int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session.StreamID == "" {
		return errs.NotInCall("no active stream")
	}
	l.session.StreamPosition = pos
	return nil
}

// SetVolume clamps v to [0,1] and stores it (L3).
func (l *Lifecycle) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	l.mu.Lock()
	l.session.Volume = v
	l.mu.Unlock()
}

// Volume returns the session's current volume.
func (l *Lifecycle) Volume() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Volume
}

// Mute and Unmute toggle the session's self-mute flag.
func (l *Lifecycle) Mute()   { l.mu.Lock(); l.session.Muted = true; l.mu.Unlock() }
func (l *Lifecycle) Unmute() { l.mu.Lock(); l.session.Muted = false; l.mu.Unlock() }

func (l *Lifecycle) startEventSubscription() {
	l.unsubscribe = l.transport.SubscribeEvents(func(e transport.Event) {
		if e.ChatID != l.chatID {
			return
		}
		switch e.Kind {
		case transport.UpdateParticipant:
			l.handleParticipantUpdate(e.Payload)
		case transport.UpdateKicked:
			l.handleKicked()
		case transport.UpdateCallEnded:
			l.handleCallEnded()
		case transport.UpdateHealthDegraded:
			l.dispatcher.Dispatch(eventbus.Update{Kind: eventbus.UpdateHealthDegraded, ChatID: l.chatID, Payload: e.Payload})
		}
	})
}

func (l *Lifecycle) handleParticipantUpdate(payload any) {
	p, ok := payload.(Participant)
	if !ok {
		return
	}
	l.mu.Lock()
	l.session.Participants[p.UserID] = &p
	if p.MutedByAdmin {
		l.session.MutedByAdmin = true
	}
	l.mu.Unlock()
	l.dispatcher.Dispatch(eventbus.Update{Kind: eventbus.UpdateParticipant, ChatID: l.chatID, Payload: p})
}

// handleKicked is a terminal signal that forces ended without retry.
func (l *Lifecycle) handleKicked() {
	l.stopBackground()
	l.setState(StateEnded)
	l.dispatcher.Dispatch(eventbus.Update{Kind: eventbus.UpdateKicked, ChatID: l.chatID})
}

func (l *Lifecycle) handleCallEnded() {
	l.stopBackground()
	l.setState(StateEnded)
	l.dispatcher.Dispatch(eventbus.Update{Kind: eventbus.UpdateCallEnded, ChatID: l.chatID})
}

// startReconnectMonitor polls every 30s; on unhealthy it drives a bounded
// reconnect retry chain and resumes any active stream from its last known
// position on success.
func (l *Lifecycle) startReconnectMonitor() {
	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	l.ctx = ctx
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.checkHealth(ctx)
			}
		}
	}()
}

func (l *Lifecycle) checkHealth(ctx context.Context) {
	if l.state() != StateConnected && l.state() != StateActive && l.state() != StatePaused {
		return
	}
	healthy := l.transport.Connect(ctx, l.chatID) == nil
	if healthy {
		return
	}

	l.setState(StateConnecting)
	_, err := l.retries.Do(ctx, l.connectionRetryID(), retry.ReconnectRetryConfig(), func(ctx context.Context) (any, error) {
		return nil, l.transport.Connect(ctx, l.chatID)
	})
	if err != nil {
		l.logger.Errorw("reconnect exhausted", "chat_id", l.chatID, "error", err)
		l.setState(StateError)
		l.dispatcher.Dispatch(eventbus.Update{Kind: eventbus.UpdateError, ChatID: l.chatID, Payload: err})
		return
	}

	l.setState(StateConnected)
	l.mu.Lock()
	streamID := l.session.StreamID
	l.mu.Unlock()
	if streamID != "" {
		l.setState(StateActive)
	}
}

func (l *Lifecycle) stopBackground() {
	l.mu.Lock()
	cancel := l.cancel
	unsubscribe := l.unsubscribe
	l.cancel = nil
	l.unsubscribe = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	l.wg.Wait()
}

func intToStr(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
