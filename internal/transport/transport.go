// Package transport defines the capability-typed boundaries the engine
// consumes: the TransportClient and MediaFilter contracts. The
// SourceProducer contract is defined in the streaming package.
// Concrete bindings (MTProto, WebRTC, a test double) live in subpackages
// or the host application; this package only describes the shape.
package transport

import (
	"context"

	"github.com/TgCaller/TgCaller/internal/streaming"
)

// UpdateKind discriminates events a TransportClient emits.
type UpdateKind int

const (
	UpdateParticipant UpdateKind = iota
	UpdateKicked
	UpdateCallEnded
	UpdateHealthDegraded
)

// Event is one update emitted by a TransportClient.
type Event struct {
	Kind    UpdateKind
	ChatID  int64
	Payload any
}

// EventHandler receives Events from a TransportClient subscription.
type EventHandler func(Event)

// Client is the opaque transport boundary the engine treats as an
// external collaborator: any concrete binding (MTProto voice calls,
// WebRTC, a test harness) satisfies this without the core knowing which.
type Client interface {
	Connect(ctx context.Context, chatID int64) error
	Disconnect(ctx context.Context, chatID int64) error
	SendFrame(ctx context.Context, chatID int64, frame streaming.Frame) error
	SubscribeEvents(handler EventHandler) (unsubscribe func())
}

// MediaFilter returns a transformed copy of a chunk. Implementations must be pure,
// non-blocking and never panic; a filter error is treated as a no-op by
// callers.
type MediaFilter interface {
	Apply(chunk streaming.StreamChunk) (streaming.StreamChunk, error)
}

// MediaFilterFunc adapts a function to MediaFilter.
type MediaFilterFunc func(streaming.StreamChunk) (streaming.StreamChunk, error)

func (f MediaFilterFunc) Apply(c streaming.StreamChunk) (streaming.StreamChunk, error) { return f(c) }
