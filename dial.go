// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

const defaultMaxFrame = 16 << 20 // 16MB

// Option configures a Client.
type Option func(*options)

type options struct {
	codec          Codec
	log            zerolog.Logger
	clk            clock.Clock
	defaultTimeout time.Duration
	maxFrame       int
}

func defaultOptions() *options {
	return &options{
		codec:    defaultCodec,
		log:      zerolog.Nop(),
		clk:      clock.New(),
		maxFrame: defaultMaxFrame,
	}
}

// WithCodec sets a custom payload codec. Encoded payloads must be valid
// JSON since they ride inside JSON envelopes.
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock substitutes the timer source, letting tests drive request
// timeouts deterministically.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// WithDefaultTimeout applies a timeout to every request that does not set
// its own. Zero keeps requests unbounded.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) { o.defaultTimeout = d }
}

// WithMaxFrame caps the size of a single incoming frame on stream
// transports.
func WithMaxFrame(n int) Option {
	return func(o *options) { o.maxFrame = n }
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout time.Duration
}

// WithTimeout bounds one request. Zero removes any client-level default,
// making the request unbounded.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// Dial builds the transport for addr, connects it, and returns a ready
// Client. The address takes an optional scheme prefix selecting the
// transport: tcp:// (default), unix://, ws://, wss://.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	t, err := newTransport(addr, o)
	if err != nil {
		return nil, err
	}
	c := newClient(t, o)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newTransport(addr string, o *options) (Transport, error) {
	scheme, rest := DefaultTransport, addr
	if i := strings.Index(addr, "://"); i >= 0 {
		scheme, rest = addr[:i], addr[i+3:]
	}
	transportsMu.RLock()
	factory, ok := transports[scheme]
	transportsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("muxrpc: unknown transport %q (available: %s)",
			scheme, strings.Join(AvailableTransports(), ", "))
	}
	return factory(scheme, rest, o), nil
}
