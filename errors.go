// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when a request is issued while the client
	// is not in the connected state. This is a programmer error, not a
	// retryable condition.
	ErrNotConnected = errors.New("muxrpc: not connected")

	// ErrClientClosed is returned from any operation after Close.
	ErrClientClosed = errors.New("muxrpc: client closed")

	// ErrConnectionRefused marks dial failures where the peer is not
	// listening. Callers match it with errors.Is to drive retry loops
	// without misclassifying other faults as retryable.
	ErrConnectionRefused = errors.New("muxrpc: connection refused")
)

// ConnectionLostError rejects a pending request when the connection drops
// while the request is still in flight. Route is empty when the error
// describes the connection as a whole rather than one request.
type ConnectionLostError struct {
	Route string
}

func (e *ConnectionLostError) Error() string {
	if e.Route == "" {
		return "muxrpc: connection lost"
	}
	return fmt.Sprintf("muxrpc: connection lost during %q", e.Route)
}

// TimeoutError rejects a pending request whose configured timeout elapsed
// before the peer sent a terminal response.
type TimeoutError struct {
	Route   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("muxrpc: request %q timed out after %s", e.Route, e.Timeout)
}

// RequestError is a structured application-level failure reported by the
// peer in the body of a terminal message envelope.
type RequestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (e *RequestError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("muxrpc: request failed: %s", e.Message)
	}
	return fmt.Sprintf("muxrpc: request failed: %s: %s", e.Code, e.Message)
}

// DecodeError signals malformed wire data. The connection stays usable
// unless the transport itself judges the byte stream unrecoverable.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("muxrpc: decode: %s", e.Reason)
	}
	return fmt.Sprintf("muxrpc: decode: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PeerError carries an error or malformedRequest envelope, a protocol-level
// failure the peer reports outside of any one request. It is delivered on
// the client error channel, never injected into unrelated requests.
type PeerError struct {
	Kind    EnvelopeKind
	Payload json.RawMessage
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("muxrpc: peer reported %s: %s", e.Kind, e.Payload)
}
