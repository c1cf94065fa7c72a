// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamOrderedThenEOF(t *testing.T) {
	s := newStream()
	s.write(json.RawMessage("1"))
	s.write(json.RawMessage("2"))
	s.write(json.RawMessage("3"))
	s.close()

	ctx := context.Background()
	for _, want := range []string{"1", "2", "3"} {
		v, err := s.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, want, string(v))
	}
	_, err := s.Recv(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamWriteAfterCloseIgnored(t *testing.T) {
	s := newStream()
	s.close()
	s.close() // idempotent
	s.write(json.RawMessage("42"))

	_, err := s.Recv(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamRecvBlocksUntilWrite(t *testing.T) {
	s := newStream()
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.write(json.RawMessage(`"v"`))
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := s.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, `"v"`, string(v))
}

func TestStreamRecvHonorsContext(t *testing.T) {
	s := newStream()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Recv(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestResponseSettleClosesStreamFirst(t *testing.T) {
	r := newResponse("job")
	r.stream.write(json.RawMessage("1"))
	r.settle(json.RawMessage(`"done"`), nil)

	ctx := context.Background()
	result, err := r.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, `"done"`, string(result))
	require.Equal(t, "job", r.Route())

	// Buffered values stay readable, then the sequence is terminated.
	v, err := r.Stream().Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", string(v))
	_, err = r.Stream().Recv(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestResponseWaitHonorsContext(t *testing.T) {
	r := newResponse("job")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
