// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// wsTransport frames envelopes over a WebSocket connection. WebSocket is
// message-oriented, so each envelope travels as one text message and no
// delimiter is needed; the envelope contract is otherwise identical to the
// stream transports.
type wsTransport struct {
	url string
	log zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	events  chan Event
	closed  atomic.Bool
}

func newWSTransport(scheme, addr string, o *options) Transport {
	return &wsTransport{
		url:    scheme + "://" + addr,
		log:    o.log,
		events: make(chan Event, 64),
	}
}

func (t *wsTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return ErrClientClosed
	}
	dialer := websocket.Dialer{}
	conn, resp, err := dialer.DialContext(ctx, t.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("%w: %s", ErrConnectionRefused, t.url)
		}
		return fmt.Errorf("muxrpc: dial %s: %w", t.url, err)
	}

	connID := uuid.New()
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.log.Debug().Stringer("conn", connID).Str("url", t.url).Msg("transport connected")

	t.events <- Event{Kind: EventConnected}
	go t.readLoop(conn, connID)
	return nil
}

func (t *wsTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil || t.closed.Load() {
		return ErrNotConnected
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("muxrpc: write: %w", err)
	}
	return nil
}

func (t *wsTransport) Events() <-chan Event { return t.events }

func (t *wsTransport) readLoop(conn *websocket.Conn, connID uuid.UUID) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !t.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Warn().Stringer("conn", connID).Err(err).Msg("transport read failed")
				t.events <- Event{Kind: EventError, Err: fmt.Errorf("muxrpc: read: %w", err)}
			}
			break
		}
		t.events <- Event{Kind: EventFrame, Frame: frame}
	}

	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()

	t.log.Debug().Stringer("conn", connID).Msg("transport disconnected")
	t.events <- Event{Kind: EventDisconnected}
}

func (t *wsTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
