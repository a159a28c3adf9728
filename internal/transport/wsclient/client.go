// Package wsclient is a reference TransportClient adapter over a
// websocket signalling connection: one connection per chat, frames
// marshalled as binary messages, events delivered on a dedicated reader
// goroutine. It exists to exercise the TransportClient capability
// boundary end-to-end, not as a production signalling binding.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/TgCaller/TgCaller/internal/logging"
	"github.com/TgCaller/TgCaller/internal/streaming"
	"github.com/TgCaller/TgCaller/internal/transport"
)

// Dialer opens one websocket connection per chat id, e.g. to a signalling
// gateway endpoint keyed by chat.
type Dialer func(ctx context.Context, chatID int64) (*websocket.Conn, error)

// Client is a reference transport.Client backed by one websocket
// connection per chat. Outbound frames are written directly; inbound
// messages are decoded as events and handed to every subscriber
// synchronously on the connection's reader goroutine, and malformed ones
// are logged and dropped.
type Client struct {
	dial   Dialer
	logger logging.Logger

	mu    sync.Mutex
	conns map[int64]*websocket.Conn

	handlersMu sync.Mutex
	handlers   []transport.EventHandler
}

// New builds a Client that dials connections via dial.
func New(dial Dialer, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{dial: dial, logger: logger.Named("wsclient"), conns: make(map[int64]*websocket.Conn)}
}

type wireEvent struct {
	Kind    int    `json:"kind"`
	ChatID  int64  `json:"chat_id"`
	Payload string `json:"payload,omitempty"`
}

// Connect dials chatID's signalling connection and starts its reader
// goroutine.
func (c *Client) Connect(ctx context.Context, chatID int64) error {
	c.mu.Lock()
	if _, ok := c.conns[chatID]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx, chatID)
	if err != nil {
		return fmt.Errorf("dial chat %d: %w", chatID, err)
	}

	c.mu.Lock()
	c.conns[chatID] = conn
	c.mu.Unlock()

	go c.readLoop(chatID, conn)
	return nil
}

// Disconnect closes chatID's connection, if any.
func (c *Client) Disconnect(ctx context.Context, chatID int64) error {
	c.mu.Lock()
	conn, ok := c.conns[chatID]
	delete(c.conns, chatID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Close()
}

// SendFrame writes frame as a binary websocket message on chatID's
// connection.
func (c *Client) SendFrame(ctx context.Context, chatID int64, frame streaming.Frame) error {
	c.mu.Lock()
	conn, ok := c.conns[chatID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("chat %d not connected", chatID)
	}
	return conn.WriteMessage(websocket.BinaryMessage, frame.Data)
}

// SubscribeEvents registers handler for every decoded inbound event
// across all connections.
func (c *Client) SubscribeEvents(handler transport.EventHandler) func() {
	c.handlersMu.Lock()
	c.handlers = append(c.handlers, handler)
	idx := len(c.handlers) - 1
	c.handlersMu.Unlock()

	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		if idx < len(c.handlers) {
			c.handlers[idx] = nil
		}
	}
}

func (c *Client) readLoop(chatID int64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debugw("websocket read loop ending", "chat_id", chatID, "error", err)
			return
		}
		var we wireEvent
		if err := json.Unmarshal(data, &we); err != nil {
			c.logger.Warnw("dropping malformed event", "chat_id", chatID, "error", err)
			continue
		}
		c.dispatch(transport.Event{Kind: transport.UpdateKind(we.Kind), ChatID: we.ChatID, Payload: we.Payload})
	}
}

func (c *Client) dispatch(e transport.Event) {
	c.handlersMu.Lock()
	handlers := append([]transport.EventHandler(nil), c.handlers...)
	c.handlersMu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(e)
		}
	}
}
