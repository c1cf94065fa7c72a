// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"context"
	"sync"
)

// Transport schemes
const (
	TransportTCP  = "tcp"  // framed TCP, default
	TransportUnix = "unix" // framed unix-domain socket (local IPC)
	TransportWS   = "ws"   // WebSocket, one envelope per message
	TransportWSS  = "wss"  // WebSocket over TLS
)

// DefaultTransport is the scheme assumed when an address carries none.
const DefaultTransport = TransportTCP

// EventKind classifies transport events.
type EventKind uint8

const (
	// EventConnected fires once per successful Connect.
	EventConnected EventKind = iota + 1
	// EventDisconnected fires exactly once per connection, after the last
	// frame of that connection.
	EventDisconnected
	// EventFrame delivers one complete frame, delimiter stripped.
	EventFrame
	// EventError reports a transport-level fault (read error, oversized
	// frame). It does not imply disconnection by itself.
	EventError
)

// Event is one discrete notification from a Transport. Frames and
// connection-state changes share a single ordered channel so consumers can
// serialize frame handling against disconnect handling.
type Event struct {
	Kind  EventKind
	Frame []byte
	Err   error
}

// Transport owns one physical connection to the peer: it frames outgoing
// messages onto the wire and splits incoming bytes back into discrete
// frames. Implementations must emit events in arrival order and must emit
// EventDisconnected exactly once per connection.
type Transport interface {
	// Connect establishes the connection, blocking until the transport
	// confirms it or fails. Dial refusal is reported as
	// ErrConnectionRefused.
	Connect(ctx context.Context) error

	// Send writes one frame atomically with respect to other senders.
	Send(ctx context.Context, frame []byte) error

	// Events returns the ordered event channel. The channel is never
	// closed; consumers stop reading after EventDisconnected.
	Events() <-chan Event

	// Close tears the connection down. No further frame events are
	// emitted after Close returns.
	Close() error
}

type transportFactory func(scheme, addr string, o *options) Transport

var (
	transportsMu sync.RWMutex
	transports   = map[string]transportFactory{
		TransportTCP:  newStreamTransport,
		TransportUnix: newStreamTransport,
		TransportWS:   newWSTransport,
		TransportWSS:  newWSTransport,
	}
)

// registerTransport registers a new transport scheme (used by build tags).
func registerTransport(scheme string, f transportFactory) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[scheme] = f
}

// AvailableTransports returns the registered transport schemes.
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for scheme := range transports {
		result = append(result, scheme)
	}
	return result
}

// HasTransport checks if a transport scheme is available.
func HasTransport(scheme string) bool {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	_, ok := transports[scheme]
	return ok
}
