// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendJSONRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "v", r.URL.Query().Get("k"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			Method string          `json:"method"`
			ID     json.RawMessage `json:"id"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		require.Equal(t, "calc.add", req.Method)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","result":{"sum":5},"id":` + string(req.ID) + `}`))
	}))
	defer srv.Close()

	uri, err := url.Parse(srv.URL)
	require.NoError(t, err)

	var reply struct {
		Sum int `json:"sum"`
	}
	err = SendJSONRequest(testContext(t), uri, "calc.add",
		struct{ A, B int }{2, 3}, &reply, WithQueryParam("k", "v"))
	require.NoError(t, err)
	require.Equal(t, 5, reply.Sum)
}

func TestSendJSONRequestNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer srv.Close()

	uri, err := url.Parse(srv.URL)
	require.NoError(t, err)

	var reply struct{}
	err = SendJSONRequest(testContext(t), uri, "calc.add", nil, &reply)
	require.Error(t, err)
	require.Contains(t, err.Error(), "received status code: 418")
}
