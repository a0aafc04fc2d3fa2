// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Caller issues unary calls. params must be a struct with `vgirpc` tags.
type Caller interface {
	Call(ctx context.Context, method string, params any) (*Response, error)
}

// Client calls a server over a byte stream pair, such as a child
// process's stdio or a unix socket connection. Calls are serialized.
type Client struct {
	mu       sync.Mutex
	r        io.Reader
	w        io.Writer
	mem      memory.Allocator
	logLevel LogLevel
}

// NewClient creates a client that writes requests to w and reads
// responses from r.
func NewClient(r io.Reader, w io.Writer) *Client {
	return &Client{r: r, w: w, mem: memory.DefaultAllocator}
}

// SetLogLevel sets the minimum severity of server log messages returned
// in Response.Logs.
func (c *Client) SetLogLevel(level LogLevel) {
	c.logLevel = level
}

// SetAllocator sets the allocator for decoded results.
func (c *Client) SetAllocator(mem memory.Allocator) {
	if mem != nil {
		c.mem = mem
	}
}

// Call sends one request and waits for its response. Cancelling ctx does
// not interrupt a call already on the wire.
func (c *Client) Call(ctx context.Context, method string, params any) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req, err := serializeParams(c.mem, params)
	if err != nil {
		return nil, fmt.Errorf("serializing %s params: %w", method, err)
	}
	defer req.Release()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := WriteRequest(c.w, method, uuid.NewString(), c.logLevel, req); err != nil {
		return nil, fmt.Errorf("writing %s request: %w", method, err)
	}
	return ReadResponse(c.r, c.mem)
}

// HTTPClient calls an HttpServer.
type HTTPClient struct {
	// BaseURL includes the prefix, e.g. http://localhost:8080/vgi.
	BaseURL string
	// Compress sends zstd request bodies and accepts zstd responses.
	Compress bool
	LogLevel LogLevel
	Client   *http.Client
	Mem      memory.Allocator
}

// NewHTTPClient creates a client for the server at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{BaseURL: strings.TrimSuffix(baseURL, "/"), Client: http.DefaultClient}
}

// Call posts one request and decodes the response stream. Error batches
// come back as *RpcError regardless of the HTTP status.
func (c *HTTPClient) Call(ctx context.Context, method string, params any) (*Response, error) {
	mem := c.Mem
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	req, err := serializeParams(mem, params)
	if err != nil {
		return nil, fmt.Errorf("serializing %s params: %w", method, err)
	}
	var body bytes.Buffer
	err = WriteRequest(&body, method, uuid.NewString(), c.LogLevel, req)
	req.Release()
	if err != nil {
		return nil, fmt.Errorf("writing %s request: %w", method, err)
	}

	payload := body.Bytes()
	if c.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		payload = enc.EncodeAll(payload, nil)
		enc.Close()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", arrowContentType)
	if c.Compress {
		httpReq.Header.Set("Content-Encoding", zstdEncoding)
		httpReq.Header.Set("Accept-Encoding", zstdEncoding)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != arrowContentType {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s: unexpected response %s (%s): %s", method, resp.Status, ct, strings.TrimSpace(string(msg)))
	}

	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), zstdEncoding) {
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}
	return ReadResponse(r, mem)
}

// Describe calls __describe__ on c.
func Describe(ctx context.Context, c Caller) ([]MethodDescription, error) {
	resp, err := c.Call(ctx, DescribeMethod, struct{}{})
	if err != nil {
		return nil, err
	}
	defer resp.Result.Release()
	return ParseDescribe(resp.Result)
}
