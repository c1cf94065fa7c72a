// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPeer is an in-process server speaking the framed envelope protocol,
// just enough to exercise the client side.
type testPeer struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	wmu      sync.Mutex
	conn     net.Conn
	handlers map[string]func(Request)
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &testPeer{t: t, ln: ln, handlers: make(map[string]func(Request))}
	go p.serve()
	t.Cleanup(p.close)
	return p
}

func (p *testPeer) addr() string { return p.ln.Addr().String() }

func (p *testPeer) handle(route string, h func(Request)) {
	p.mu.Lock()
	p.handlers[route] = h
	p.mu.Unlock()
}

func (p *testPeer) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()
		p.serveConn(conn)
	}
}

func (p *testPeer) serveConn(conn net.Conn) {
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		frame := append([]byte(nil), sc.Bytes()...)
		req, err := DecodeRequest(frame)
		if err != nil {
			continue
		}
		p.mu.Lock()
		h := p.handlers[req.Route]
		p.mu.Unlock()
		if h != nil {
			h(req)
		}
	}
}

func (p *testPeer) send(kind EnvelopeKind, body interface{}) {
	data, err := json.Marshal(body)
	assert.NoError(p.t, err)
	frame, err := json.Marshal(map[string]interface{}{
		"type": string(kind),
		"data": json.RawMessage(data),
	})
	assert.NoError(p.t, err)
	p.sendRaw(string(frame))
}

func (p *testPeer) sendRaw(line string) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if !assert.NotNil(p.t, conn, "peer has no connection") {
		return
	}
	p.wmu.Lock()
	_, err := conn.Write(append([]byte(line), Delimiter))
	p.wmu.Unlock()
	assert.NoError(p.t, err)
}

func (p *testPeer) sendMessage(id uint64, status int, data interface{}) {
	p.send(KindMessage, map[string]interface{}{"id": id, "status": status, "data": data})
}

func (p *testPeer) sendStream(id uint64, data interface{}) {
	p.send(KindStream, map[string]interface{}{"id": id, "data": data})
}

// dropConn closes the accepted connection, simulating an abrupt disconnect.
func (p *testPeer) dropConn() {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (p *testPeer) close() {
	p.ln.Close()
	p.dropConn()
}

// echoPeer is the common fixture: replies to "echo" with the request data.
func echoPeer(t *testing.T) *testPeer {
	t.Helper()
	p := newTestPeer(t)
	p.handle("echo", func(req Request) {
		p.sendMessage(req.MID, 200, json.RawMessage(req.Data))
	})
	return p
}
