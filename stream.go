// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Stream is the ordered sequence of partial values for one request. The
// multiplexer is the only producer; it closes the stream no later than the
// moment the owning Response settles. Writes after close are ignored, so a
// late stream envelope for a settled request can never surface anywhere.
type Stream struct {
	mu     sync.Mutex
	buf    []json.RawMessage
	closed bool
	notify chan struct{} // 1-buffered wakeup for a blocked Recv
}

func newStream() *Stream {
	return &Stream{notify: make(chan struct{}, 1)}
}

// Recv returns the next partial value in arrival order, blocking until one
// is available, the stream closes, or ctx expires. Once the stream is
// closed and drained, Recv returns io.EOF; consumers that arrive after
// close observe an already-terminated sequence.
func (s *Stream) Recv(ctx context.Context) (json.RawMessage, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			v := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return v, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, io.EOF
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notify:
		}
	}
}

func (s *Stream) write(v json.RawMessage) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, v)
	s.mu.Unlock()
	s.wake()
}

// close is idempotent.
func (s *Stream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Stream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
