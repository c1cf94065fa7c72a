// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package muxrpc multiplexes many concurrent logical requests over one
// persistent, ordered, bidirectional connection to a single server,
// matching each asynchronous response (and any number of streamed partial
// results) back to the call that issued it.
//
// # Wire protocol
//
// Every frame is a JSON object {type, data} where type is one of
// "message", "stream", "error" or "malformedRequest". On stream transports
// (TCP, unix socket) frames are newline-delimited; over WebSocket each
// envelope travels as one message. Outgoing requests carry {mid, type,
// data} where mid is a per-connection strictly increasing message id and
// type is the route name. Terminal responses carry {id, status, data};
// partial values carry {id, data}.
//
// # Usage
//
//	client, err := muxrpc.Dial(ctx, "localhost:9000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Synchronous call (auto JSON encoding)
//	var result MyResponse
//	err = client.Call(ctx, "service.method", &MyRequest{...}, &result)
//
//	// Asynchronous request with streamed partial results
//	resp, err := client.Request("jobs.run", params, muxrpc.WithTimeout(time.Minute))
//	for {
//	    v, err := resp.Stream().Recv(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//	result, err := resp.Wait(ctx)
//
// Retry loops distinguish a peer that is not up yet from other faults:
//
//	for {
//	    ok, err := client.TryConnect(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    if ok {
//	        break
//	    }
//	    time.Sleep(backoff)
//	}
//
// # Architecture
//
// The package separates concerns:
//
//   - envelope.go: envelope kinds and the wire codec
//   - transport.go: Transport interface, events, scheme registry
//   - transport_tcp.go: framed TCP and unix-socket transport
//   - transport_ws.go: WebSocket transport
//   - stream.go, response.go: per-request completion and partial-value
//     primitives
//   - client.go: the request multiplexer and client facade
//   - httprpc.go: one-shot JSON-RPC over HTTP for HTTP-only peers
//   - dial_grpc.go: gRPC alternative (requires -tags grpc)
//
// Requests are only accepted while connected; a mid-flight disconnect
// rejects every pending request with ConnectionLostError and a request
// issued before connecting fails fast with ErrNotConnected. Per-request
// timeouts are optional and unbounded by default.
package muxrpc
