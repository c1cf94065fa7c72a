// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"context"
	"encoding/json"
)

// Response is the application-facing completion handle for one request. It
// settles exactly once, with either a result or an error, and is terminal
// after that.
type Response struct {
	route  string
	stream *Stream
	done   chan struct{}
	result json.RawMessage
	err    error
}

func newResponse(route string) *Response {
	return &Response{
		route:  route,
		stream: newStream(),
		done:   make(chan struct{}),
	}
}

// Route returns the route name the request was issued for.
func (r *Response) Route() string { return r.route }

// Stream returns the partial-value sequence associated with this request.
func (r *Response) Stream() *Stream { return r.stream }

// Done is closed when the response settles.
func (r *Response) Done() <-chan struct{} { return r.done }

// Wait blocks until the response settles or ctx expires, then returns the
// terminal result or error.
func (r *Response) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
	}
	return r.result, r.err
}

// settle records the terminal outcome. Callers must hold the pending-table
// latch (removal from the table), which guarantees settle runs at most
// once. The stream is closed first so a settled Response never has a live
// stream.
func (r *Response) settle(result json.RawMessage, err error) {
	r.stream.close()
	r.result = result
	r.err = err
	close(r.done)
}
