// Copyright (C) 2021-2026, Tidewire Systems, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package muxrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	rpc "github.com/gorilla/rpc/v2/json2"
	"github.com/rs/zerolog"
)

const (
	maxRetries    = 3
	retryBaseWait = 500 * time.Millisecond
)

// HTTPOption configures a single SendJSONRequest call.
type HTTPOption func(*httpOptions)

type httpOptions struct {
	headers     http.Header
	queryParams url.Values
	log         zerolog.Logger
}

func newHTTPOptions(opts []HTTPOption) *httpOptions {
	o := &httpOptions{
		headers:     http.Header{},
		queryParams: url.Values{},
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHTTPHeader adds a header to the outgoing request.
func WithHTTPHeader(key, value string) HTTPOption {
	return func(o *httpOptions) { o.headers.Add(key, value) }
}

// WithQueryParam adds a query parameter to the request URL.
func WithQueryParam(key, value string) HTTPOption {
	return func(o *httpOptions) { o.queryParams.Add(key, value) }
}

// WithHTTPLogger sets the logger for retry diagnostics.
func WithHTTPLogger(l zerolog.Logger) HTTPOption {
	return func(o *httpOptions) { o.log = l }
}

// newHTTPClient creates a fresh HTTP client with disabled connection reuse.
// This avoids EOF errors that can occur with connection pooling in complex
// process hierarchies.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// isRetryableError checks if an error is transient and worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// EOF errors are often transient connection issues
	if errors.Is(err, io.EOF) || strings.Contains(errStr, "EOF") {
		return true
	}
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") {
		return true
	}
	return false
}

// SendJSONRequest issues one JSON-RPC 2.0 call over HTTP, for peers that
// expose an HTTP endpoint instead of the framed socket protocol. Transient
// failures are retried with exponential backoff.
func SendJSONRequest(
	ctx context.Context,
	uri *url.URL,
	method string,
	params interface{},
	reply interface{},
	opts ...HTTPOption,
) error {
	requestBodyBytes, err := rpc.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	o := newHTTPOptions(opts)
	uri.RawQuery = o.queryParams.Encode()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			waitTime := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}

		// Create fresh request for each attempt (body buffer is consumed)
		request, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			uri.String(),
			bytes.NewBuffer(requestBodyBytes),
		)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		request.Header = o.headers
		request.Header.Set("Content-Type", "application/json")

		client := newHTTPClient()
		resp, err := client.Do(request)
		if err != nil {
			lastErr = err
			o.log.Debug().Int("attempt", attempt+1).Err(err).
				Bool("retryable", isRetryableError(err)).Msg("request attempt failed")
			if isRetryableError(err) {
				continue
			}
			return fmt.Errorf("failed to issue request: %w", err)
		}

		// Return an error for any non successful status code
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			CleanlyCloseBody(resp.Body)
			return fmt.Errorf("received status code: %d", resp.StatusCode)
		}

		if err := rpc.DecodeClientResponse(resp.Body, reply); err != nil {
			CleanlyCloseBody(resp.Body)
			return fmt.Errorf("failed to decode client response: %w", err)
		}
		CleanlyCloseBody(resp.Body)
		return nil
	}

	return fmt.Errorf("failed to issue request after %d retries: %w", maxRetries, lastErr)
}
