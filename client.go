// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// Caller is the minimal synchronous calling surface. The framed Client
// implements it, as do the build-tag alternatives (see dial_grpc.go).
type Caller interface {
	Call(ctx context.Context, route string, args, reply interface{}) error
	Close() error
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// pending is the bookkeeping record for one outstanding request. It exists
// exactly until the request resolves, rejects, times out, or the
// connection drops, whichever fires first.
type pending struct {
	id      uint64
	route   string
	resp    *Response
	timer   *clock.Timer
	created time.Time
}

// Client multiplexes many concurrent logical requests over one Transport
// connection, matching each incoming envelope back to the request that
// issued it by message id.
//
// All mutation of the pending table is serialized: incoming envelopes and
// the disconnect event are handled by a single dispatch goroutine, and the
// table itself sits behind one mutex shared with Request and timeout
// callbacks.
type Client struct {
	transport Transport
	codec     Codec
	log       zerolog.Logger
	clk       clock.Clock

	defaultTimeout time.Duration

	mu      sync.Mutex
	state   connState
	nextID  uint64
	pending map[uint64]*pending

	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

var _ Caller = (*Client)(nil)

// NewClient wraps an already-constructed Transport. Most callers use Dial
// instead.
func NewClient(t Transport, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newClient(t, o)
}

func newClient(t Transport, o *options) *Client {
	return &Client{
		transport:      t,
		codec:          o.codec,
		log:            o.log,
		clk:            o.clk,
		defaultTimeout: o.defaultTimeout,
		pending:        make(map[uint64]*pending),
		errs:           make(chan error, 16),
		closed:         make(chan struct{}),
	}
}

// Connect establishes the connection, blocking until the transport
// confirms it or fails. A refused dial is reported as ErrConnectionRefused
// so callers can build retry loops. Connect may be called again after the
// connection drops.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}

	c.mu.Lock()
	if c.state != stateDisconnected {
		c.mu.Unlock()
		return errors.New("muxrpc: already connected")
	}
	c.state = stateConnecting
	c.mu.Unlock()

	if err := c.transport.Connect(ctx); err != nil {
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state = stateConnected
	c.mu.Unlock()
	go c.dispatch()
	return nil
}

// TryConnect attempts to connect and converts connection refusal into a
// false return instead of an error, for polling loops waiting on a peer to
// come up. Other failures propagate.
func (c *Client) TryConnect(ctx context.Context) (bool, error) {
	err := c.Connect(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrConnectionRefused) {
		return false, nil
	}
	return false, err
}

// Errs delivers transport and protocol errors that do not pertain to any
// one request: decode failures, peer error envelopes, and a
// *ConnectionLostError (with empty route) on disconnect. Errors that map
// to a specific pending request reject that request instead.
func (c *Client) Errs() <-chan error { return c.errs }

// Request issues one request and returns its Response immediately;
// completion happens asynchronously. The request is only accepted while
// connected. A zero timeout (the default unless WithDefaultTimeout was
// set) means the request waits indefinitely.
func (c *Client) Request(route string, data interface{}, opts ...RequestOption) (*Response, error) {
	ro := requestOptions{timeout: c.defaultTimeout}
	for _, opt := range opts {
		opt(&ro)
	}

	select {
	case <-c.closed:
		return nil, ErrClientClosed
	default:
	}

	// Encode the payload before touching the table so an encoding failure
	// never burns an id.
	var payload json.RawMessage
	if data != nil {
		b, err := c.codec.Encode(data)
		if err != nil {
			return nil, fmt.Errorf("muxrpc: encode %q args: %w", route, err)
		}
		payload = b
	}

	// Id allocation and table insertion are one atomic step: no other
	// caller can observe the id without its pending record.
	c.mu.Lock()
	if c.state != stateConnected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	p := &pending{
		id:      id,
		route:   route,
		resp:    newResponse(route),
		created: c.clk.Now(),
	}
	c.pending[id] = p
	if ro.timeout > 0 {
		d := ro.timeout
		p.timer = c.clk.AfterFunc(d, func() {
			c.reject(id, &TimeoutError{Route: route, Timeout: d})
		})
	}
	c.mu.Unlock()

	frame, err := EncodeRequest(id, route, payload)
	if err == nil {
		err = c.transport.Send(context.Background(), frame)
	}
	if err != nil {
		c.reject(id, err)
		return nil, fmt.Errorf("muxrpc: send %q: %w", route, err)
	}

	c.log.Debug().Uint64("id", id).Str("route", route).Msg("request sent")
	return p.resp, nil
}

// Call is the synchronous convenience wrapper: Request, wait for the
// terminal result, decode it into reply. Partial stream values are
// discarded; use Request directly to consume them.
func (c *Client) Call(ctx context.Context, route string, args, reply interface{}) error {
	resp, err := c.Request(route, args)
	if err != nil {
		return err
	}
	result, err := resp.Wait(ctx)
	if err != nil {
		return err
	}
	if reply != nil && len(result) > 0 {
		if err := c.codec.Decode(result, reply); err != nil {
			return fmt.Errorf("muxrpc: decode %q reply: %w", route, err)
		}
	}
	return nil
}

// Close tears down the transport. Pending requests are rejected with
// ConnectionLostError via the normal disconnect path.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.transport.Close()
	})
	return err
}

// dispatch is the single consumer of transport events for one connection.
// It exits on the connection's EventDisconnected, so frame handling and
// disconnect handling can never run concurrently.
func (c *Client) dispatch() {
	events := c.transport.Events()
	for {
		ev := <-events
		switch ev.Kind {
		case EventConnected:
			// Connect already observed this synchronously.
		case EventFrame:
			c.handleFrame(ev.Frame)
		case EventError:
			c.notifyErr(ev.Err)
		case EventDisconnected:
			c.handleDisconnect()
			return
		}
	}
}

func (c *Client) handleFrame(frame []byte) {
	env, err := DecodeEnvelope(frame)
	if err != nil {
		c.notifyErr(err)
		return
	}
	switch env.Kind {
	case KindMessage:
		c.handleMessage(env.Data)
	case KindStream:
		c.handleStream(env.Data)
	case KindError, KindMalformedRequest:
		c.notifyErr(&PeerError{Kind: env.Kind, Payload: env.Data})
	}
}

func (c *Client) handleMessage(data json.RawMessage) {
	var body messageBody
	if err := json.Unmarshal(data, &body); err != nil {
		c.notifyErr(&DecodeError{Reason: "malformed message body", Err: err})
		return
	}
	if body.ID == 0 {
		c.notifyErr(&DecodeError{Reason: "message envelope without id"})
		return
	}
	if body.Status >= 200 && body.Status < 300 {
		c.resolve(body.ID, body.Data)
		return
	}

	// Failure status: the data field should hold a structured error body.
	var reqErr RequestError
	if err := json.Unmarshal(body.Data, &reqErr); err != nil {
		c.reject(body.ID, &DecodeError{Reason: "malformed error body", Err: err})
		return
	}
	if reqErr.Code == "" && reqErr.Message == "" {
		// Not an error body at all; surface the raw payload.
		c.reject(body.ID, &RequestError{
			Code:    fmt.Sprintf("%d", body.Status),
			Message: string(body.Data),
		})
		return
	}
	c.reject(body.ID, &reqErr)
}

func (c *Client) handleStream(data json.RawMessage) {
	var body streamBody
	if err := json.Unmarshal(data, &body); err != nil {
		c.notifyErr(&DecodeError{Reason: "malformed stream body", Err: err})
		return
	}
	c.mu.Lock()
	p := c.pending[body.ID]
	c.mu.Unlock()
	if p == nil {
		// Benign late arrival for an already-settled request.
		c.log.Debug().Uint64("id", body.ID).Msg("dropping stream value for settled request")
		return
	}
	p.resp.stream.write(body.Data)
}

// handleDisconnect fails every still-pending request exactly once and
// clears the table. Requests that settled moments earlier were already
// removed and are untouched.
func (c *Client) handleDisconnect() {
	c.mu.Lock()
	c.state = stateDisconnected
	orphans := c.pending
	c.pending = make(map[uint64]*pending)
	c.mu.Unlock()

	for _, p := range orphans {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.resp.settle(nil, &ConnectionLostError{Route: p.route})
	}
	if len(orphans) > 0 {
		c.log.Info().Int("pending", len(orphans)).Msg("connection lost, rejected pending requests")
	}
	c.notifyErr(&ConnectionLostError{})
}

// take removes and returns the pending record for id. Table removal is the
// single-fire latch: whichever of resolve, reject, timeout or disconnect
// reaches it first wins, later callers get nil.
func (c *Client) take(id uint64) *pending {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	return p
}

func (c *Client) resolve(id uint64, result json.RawMessage) {
	if p := c.take(id); p != nil {
		p.resp.settle(result, nil)
	}
}

func (c *Client) reject(id uint64, err error) {
	if p := c.take(id); p != nil {
		p.resp.settle(nil, err)
	}
}

// notifyErr hands an error to the observer channel without ever blocking
// the dispatch loop.
func (c *Client) notifyErr(err error) {
	select {
	case c.errs <- err:
	default:
		c.log.Warn().Err(err).Msg("dropping client error, observer not draining")
	}
}
