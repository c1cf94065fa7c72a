// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// streamTransport frames envelopes over a stream-oriented socket (TCP or
// unix-domain). Outgoing frames are delimiter-terminated and written in one
// call under a write mutex; incoming bytes are buffered and split back on
// the delimiter, so partial frames are held until complete and several
// frames arriving in one read are all emitted in order.
type streamTransport struct {
	network  string
	addr     string
	dialer   net.Dialer
	log      zerolog.Logger
	maxFrame int

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
	events  chan Event
	closed  atomic.Bool
}

func newStreamTransport(scheme, addr string, o *options) Transport {
	return &streamTransport{
		network:  scheme,
		addr:     addr,
		log:      o.log,
		maxFrame: o.maxFrame,
		events:   make(chan Event, 64),
	}
}

func (t *streamTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return ErrClientClosed
	}
	conn, err := t.dialer.DialContext(ctx, t.network, t.addr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("%w: %s %s", ErrConnectionRefused, t.network, t.addr)
		}
		return fmt.Errorf("muxrpc: dial %s %s: %w", t.network, t.addr, err)
	}

	connID := uuid.New()
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.log.Debug().
		Stringer("conn", connID).
		Str("network", t.network).
		Str("addr", t.addr).
		Msg("transport connected")

	t.events <- Event{Kind: EventConnected}
	go t.readLoop(conn, connID)
	return nil
}

func (t *streamTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil || t.closed.Load() {
		return ErrNotConnected
	}

	// One buffer, one Write: frames are never interleaved on the wire.
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, Delimiter)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Time{})
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("muxrpc: write: %w", err)
	}
	return nil
}

func (t *streamTransport) Events() <-chan Event { return t.events }

func (t *streamTransport) readLoop(conn net.Conn, connID uuid.UUID) {
	sc := bufio.NewScanner(conn)
	// Scanner grows to the larger of the initial capacity and the max, so
	// the initial buffer must not exceed the configured frame cap.
	initial := 64 * 1024
	if t.maxFrame < initial {
		initial = t.maxFrame
	}
	sc.Buffer(make([]byte, 0, initial), t.maxFrame)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		frame := make([]byte, len(sc.Bytes()))
		copy(frame, sc.Bytes())
		t.events <- Event{Kind: EventFrame, Frame: frame}
	}
	if err := sc.Err(); err != nil && !t.closed.Load() {
		t.log.Warn().Stringer("conn", connID).Err(err).Msg("transport read failed")
		t.events <- Event{Kind: EventError, Err: fmt.Errorf("muxrpc: read: %w", err)}
	}

	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()

	t.log.Debug().Stringer("conn", connID).Msg("transport disconnected")
	t.events <- Event{Kind: EventDisconnected}
}

func (t *streamTransport) Close() error {
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
