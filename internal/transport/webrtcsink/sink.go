// Package webrtcsink is a second reference TransportClient adapter,
// packetizing Frames onto local WebRTC tracks instead of a websocket
// connection, to demonstrate the Frame contract is transport-agnostic.
// Grounded on the teacher's webrtc streamer: one local track per chat,
// each frame written as one sample of fixed 20ms duration, with any write
// error returned to the caller.
package webrtcsink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/TgCaller/TgCaller/internal/logging"
	"github.com/TgCaller/TgCaller/internal/streaming"
	"github.com/TgCaller/TgCaller/internal/transport"
)

// PeerConnectionFactory builds the pion PeerConnection for a chat;
// signalling (offer/answer exchange) is the host application's
// responsibility and happens outside this adapter.
type PeerConnectionFactory func(ctx context.Context, chatID int64) (*webrtc.PeerConnection, error)

type chatTrack struct {
	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample
}

// Sink is a reference transport.Client backed by one PeerConnection and
// local audio track per chat.
type Sink struct {
	factory PeerConnectionFactory
	logger  logging.Logger

	mu     sync.Mutex
	chats  map[int64]*chatTrack

	handlersMu sync.Mutex
	handlers   []transport.EventHandler
}

// New builds a Sink that creates peer connections via factory.
func New(factory PeerConnectionFactory, logger logging.Logger) *Sink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sink{factory: factory, logger: logger.Named("webrtcsink"), chats: make(map[int64]*chatTrack)}
}

// Connect builds chatID's peer connection and local audio track.
func (s *Sink) Connect(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	if _, ok := s.chats[chatID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	pc, err := s.factory(ctx, chatID)
	if err != nil {
		return fmt.Errorf("build peer connection for chat %d: %w", chatID, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, fmt.Sprintf("audio-%d", chatID), fmt.Sprintf("tgcaller-%d", chatID))
	if err != nil {
		return fmt.Errorf("create local track for chat %d: %w", chatID, err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fmt.Errorf("attach local track for chat %d: %w", chatID, err)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			s.dispatch(transport.Event{Kind: transport.UpdateHealthDegraded, ChatID: chatID})
		case webrtc.PeerConnectionStateClosed:
			s.dispatch(transport.Event{Kind: transport.UpdateCallEnded, ChatID: chatID})
		}
	})

	s.mu.Lock()
	s.chats[chatID] = &chatTrack{pc: pc, track: track}
	s.mu.Unlock()
	return nil
}

// Disconnect closes chatID's peer connection.
func (s *Sink) Disconnect(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	ct, ok := s.chats[chatID]
	delete(s.chats, chatID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return ct.pc.Close()
}

// SendFrame writes frame onto chatID's local track as a media sample with
// a fixed 20ms duration.
func (s *Sink) SendFrame(ctx context.Context, chatID int64, frame streaming.Frame) error {
	s.mu.Lock()
	ct, ok := s.chats[chatID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("chat %d not connected", chatID)
	}

	duration := 20 * time.Millisecond
	return ct.track.WriteSample(media.Sample{Data: frame.Data, Duration: duration})
}

// SubscribeEvents registers handler for connection-state-derived events.
func (s *Sink) SubscribeEvents(handler transport.EventHandler) func() {
	s.handlersMu.Lock()
	s.handlers = append(s.handlers, handler)
	idx := len(s.handlers) - 1
	s.handlersMu.Unlock()

	return func() {
		s.handlersMu.Lock()
		defer s.handlersMu.Unlock()
		if idx < len(s.handlers) {
			s.handlers[idx] = nil
		}
	}
}

func (s *Sink) dispatch(e transport.Event) {
	s.handlersMu.Lock()
	handlers := append([]transport.EventHandler(nil), s.handlers...)
	s.handlersMu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(e)
		}
	}
}
