// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	arrowContentType = "application/vnd.apache.arrow.stream"
	zstdEncoding     = "zstd"
	// maxRequestBytes bounds request bodies after decompression.
	maxRequestBytes = 64 << 20
)

// HttpServer serves RPC requests over HTTP at POST {prefix}/{method}. GET
// {prefix}/ and {prefix}/describe return HTML pages listing the methods.
type HttpServer struct {
	server    *Server
	prefix    string
	zstdLevel zstd.EncoderLevel
	mux       *http.ServeMux
}

// NewHttpServer creates an HTTP handler for server under the /vgi prefix.
func NewHttpServer(server *Server) *HttpServer {
	return NewHttpServerWithPrefix(server, "/vgi")
}

// NewHttpServerWithPrefix creates an HTTP handler under prefix.
func NewHttpServerWithPrefix(server *Server, prefix string) *HttpServer {
	h := &HttpServer{
		server:    server,
		prefix:    strings.TrimSuffix(prefix, "/"),
		zstdLevel: zstd.SpeedDefault,
	}
	h.mux = http.NewServeMux()
	h.mux.HandleFunc(fmt.Sprintf("POST %s/{method}", h.prefix), h.handleUnary)
	h.mux.HandleFunc(fmt.Sprintf("GET %s/{$}", h.prefix), h.handleLandingPage)
	h.mux.HandleFunc(fmt.Sprintf("GET %s/describe", h.prefix), h.handleDescribePage)
	h.mux.HandleFunc(fmt.Sprintf("GET %s/", h.prefix), h.handleNotFound)
	return h
}

// SetCompressionLevel sets the zstd level (1-22, as in the zstd CLI) used
// for responses to clients that send Accept-Encoding: zstd.
func (h *HttpServer) SetCompressionLevel(level int) {
	h.zstdLevel = zstd.EncoderLevelFromZstd(level)
}

// ServeHTTP implements http.Handler.
func (h *HttpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HttpServer) handleUnary(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")

	if ct := r.Header.Get("Content-Type"); ct != arrowContentType {
		h.writeHttpError(w, r, http.StatusUnsupportedMediaType,
			&RpcError{Type: ErrTypeProtocol, Message: fmt.Sprintf("unsupported content type: %s", ct)})
		return
	}

	body, err := h.readBody(r)
	if err != nil {
		h.writeHttpError(w, r, http.StatusBadRequest, &RpcError{Type: ErrTypeProtocol, Message: err.Error()})
		return
	}

	req, err := ReadRequest(bytes.NewReader(body))
	if err != nil {
		h.writeHttpError(w, r, http.StatusBadRequest, err)
		return
	}
	defer req.Batch.Release()

	if req.Method != method {
		h.writeHttpError(w, r, http.StatusBadRequest, &RpcError{
			Type:    ErrTypeProtocol,
			Message: fmt.Sprintf("request method %q does not match path %q", req.Method, method),
		})
		return
	}
	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
	req.Metadata["remote_addr"] = r.RemoteAddr
	req.Metadata["user_agent"] = r.UserAgent()

	var buf bytes.Buffer
	callErr, writeErr := h.server.dispatch(r.Context(), &buf, req)
	if writeErr != nil {
		h.server.logger.Error("http: writing response", "method", method, "err", writeErr)
		h.writeHttpError(w, r, http.StatusInternalServerError,
			&RpcError{Type: ErrTypeSerialization, Message: writeErr.Error()})
		return
	}
	h.writeArrow(w, r, statusForError(callErr), buf.Bytes())
}

// readBody reads the request body, decoding zstd when the client sent
// Content-Encoding: zstd.
func (h *HttpServer) readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if len(body) > maxRequestBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxRequestBytes)
	}
	if !strings.EqualFold(r.Header.Get("Content-Encoding"), zstdEncoding) {
		return body, nil
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxRequestBytes))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("decoding zstd request body: %w", err)
	}
	return out, nil
}

// statusForError maps a call error to an HTTP status. The body always
// carries the error batch.
func statusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var rpcErr *RpcError
	if !errors.As(err, &rpcErr) {
		return http.StatusInternalServerError
	}
	switch rpcErr.Type {
	case ErrTypeType, ErrTypeValue, ErrTypeKey, ErrTypeProtocol, ErrTypeVersion:
		return http.StatusBadRequest
	case ErrTypeAttribute:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *HttpServer) writeHttpError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	var buf bytes.Buffer
	_ = writeErrorResponse(&buf, err, h.server.serverID, "", h.server.debugErrors)
	h.writeArrow(w, r, statusCode, buf.Bytes())
}

func (h *HttpServer) writeArrow(w http.ResponseWriter, r *http.Request, statusCode int, data []byte) {
	w.Header().Set("Content-Type", arrowContentType)
	if acceptsZstd(r) {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(h.zstdLevel))
		if err == nil {
			data = enc.EncodeAll(data, nil)
			enc.Close()
			w.Header().Set("Content-Encoding", zstdEncoding)
		}
	}
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}

func acceptsZstd(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(name, zstdEncoding) {
			return true
		}
	}
	return false
}
