// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"encoding/json"
	"fmt"
)

// EnvelopeKind tags one decoded unit of the wire protocol.
type EnvelopeKind string

const (
	// KindMessage is a terminal response body: {id, status, data}.
	KindMessage EnvelopeKind = "message"
	// KindStream is a partial value for a still-pending request: {id, data}.
	KindStream EnvelopeKind = "stream"
	// KindError is a protocol-level failure not tied to request completion.
	KindError EnvelopeKind = "error"
	// KindMalformedRequest reports that the peer could not parse a frame
	// we sent.
	KindMalformedRequest EnvelopeKind = "malformedRequest"
)

// Delimiter terminates every frame on stream-oriented transports. It never
// occurs inside an encoded frame since encoding/json escapes control
// characters inside strings.
const Delimiter byte = '\n'

// Envelope is one decoded unit of the wire protocol. Immutable once
// constructed.
type Envelope struct {
	Kind EnvelopeKind
	Data json.RawMessage
}

type wireEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a single frame (without its delimiter) into a typed
// envelope. Any shape violation is a *DecodeError, never a panic.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(frame, &w); err != nil {
		return Envelope{}, &DecodeError{Reason: "invalid frame", Err: err}
	}
	switch k := EnvelopeKind(w.Type); k {
	case KindMessage, KindStream, KindError, KindMalformedRequest:
		return Envelope{Kind: k, Data: w.Data}, nil
	default:
		return Envelope{}, &DecodeError{Reason: fmt.Sprintf("unknown envelope type %q", w.Type)}
	}
}

// Request is the body of an outgoing request envelope as the peer decodes
// it: {mid, type, data}. The route travels in the "type" field.
type Request struct {
	MID   uint64          `json:"mid"`
	Route string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

// EncodeRequest builds the frame for one outgoing request. The data value
// must marshal to JSON; pre-encoded payloads pass through as
// json.RawMessage. The frame excludes the delimiter, which is the
// transport's concern.
func EncodeRequest(mid uint64, route string, data interface{}) ([]byte, error) {
	body, err := json.Marshal(struct {
		MID   uint64      `json:"mid"`
		Route string      `json:"type"`
		Data  interface{} `json:"data"`
	}{MID: mid, Route: route, Data: data})
	if err != nil {
		return nil, fmt.Errorf("muxrpc: encode request %q: %w", route, err)
	}
	return json.Marshal(wireEnvelope{Type: string(KindMessage), Data: body})
}

// DecodeRequest parses a frame as the receiving peer would, yielding the
// original {mid, route, data} triple.
func DecodeRequest(frame []byte) (Request, error) {
	env, err := DecodeEnvelope(frame)
	if err != nil {
		return Request{}, err
	}
	if env.Kind != KindMessage {
		return Request{}, &DecodeError{Reason: fmt.Sprintf("expected message envelope, got %q", env.Kind)}
	}
	var req Request
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return Request{}, &DecodeError{Reason: "invalid request body", Err: err}
	}
	return req, nil
}

// messageBody is the terminal response body carried by a message envelope.
type messageBody struct {
	ID     uint64          `json:"id"`
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// streamBody is one partial value carried by a stream envelope.
type streamBody struct {
	ID   uint64          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Codec encodes and decodes application payload values. Encoded payloads
// ride inside JSON envelopes, so Encode must produce valid JSON.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// JSONCodec is the default payload codec.
type JSONCodec struct{}

func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// defaultCodec is used when no codec is specified
var defaultCodec Codec = JSONCodec{}
