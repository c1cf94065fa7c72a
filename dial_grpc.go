//go:build grpc

// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DialGRPC returns a Caller backed by a gRPC connection, for peers that
// expose gRPC instead of the framed envelope protocol. Streams and
// envelope-level features are not available through it.
func DialGRPC(ctx context.Context, addr string) (Caller, error) {
	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &grpcCaller{conn: conn}, nil
}

type grpcCaller struct {
	conn *grpc.ClientConn
}

func (c *grpcCaller) Call(ctx context.Context, route string, args, reply interface{}) error {
	return c.conn.Invoke(ctx, route, args, reply)
}

func (c *grpcCaller) Close() error {
	return c.conn.Close()
}
