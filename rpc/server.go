// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"reflect"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"
)

// UnaryHandler handles one call. The returned batch is owned by the server,
// which releases it after writing.
type UnaryHandler[P any] func(ctx context.Context, call *CallContext, params P) (arrow.RecordBatch, error)

// methodInfo is the registration of one method.
type methodInfo struct {
	Name          string
	Doc           string
	ParamsType    reflect.Type
	ParamsSchema  *arrow.Schema
	ParamDefaults map[string]string
	ParamDocs     map[string]string
	// invoke decodes the params batch and calls the typed handler.
	invoke func(ctx context.Context, call *CallContext, batch arrow.RecordBatch) (arrow.RecordBatch, error)
}

// Server dispatches requests to registered methods.
type Server struct {
	mu           sync.RWMutex
	methods      map[string]*methodInfo
	serverID     string
	serviceName  string
	dispatchHook DispatchHook
	debugErrors  bool
	logger       *slog.Logger
}

// NewServer creates a server with a random server ID.
func NewServer() *Server {
	return &Server{
		methods:  make(map[string]*methodInfo),
		serverID: uuid.NewString(),
		logger:   slog.Default(),
	}
}

// SetServerID sets the identifier included in response metadata.
func (s *Server) SetServerID(id string) {
	s.serverID = id
}

// ServerID returns the server identifier.
func (s *Server) ServerID() string {
	return s.serverID
}

// SetServiceName sets a logical service name used by observability hooks.
func (s *Server) SetServiceName(name string) {
	s.serviceName = name
}

// ServiceName returns the logical service name, or empty string if not set.
func (s *Server) ServiceName() string {
	return s.serviceName
}

// SetDispatchHook registers a hook called around each dispatch.
func (s *Server) SetDispatchHook(hook DispatchHook) {
	s.dispatchHook = hook
}

// SetDebugErrors controls whether error responses include stack traces.
// Leave it off for public-facing deployments.
func (s *Server) SetDebugErrors(enabled bool) {
	s.debugErrors = enabled
}

// SetLogger sets the logger for transport and dispatch diagnostics.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Unary registers a unary method. P must be a struct with `vgirpc` tags.
func Unary[P any](s *Server, name, doc string, handler UnaryHandler[P]) {
	var p P
	paramsType := reflect.TypeOf(p)
	fields, err := paramFields(paramsType)
	if err != nil {
		panic(fmt.Sprintf("rpc: registering %q: invalid params type %T: %v", name, p, err))
	}
	schema, _ := structToSchema(paramsType)

	info := &methodInfo{
		Name:         name,
		Doc:          doc,
		ParamsType:   paramsType,
		ParamsSchema: schema,
	}
	for _, f := range fields {
		if f.Tag.Default != nil {
			if info.ParamDefaults == nil {
				info.ParamDefaults = make(map[string]string)
			}
			info.ParamDefaults[f.Tag.Name] = *f.Tag.Default
		}
		if f.Tag.Doc != "" {
			if info.ParamDocs == nil {
				info.ParamDocs = make(map[string]string)
			}
			info.ParamDocs[f.Tag.Name] = f.Tag.Doc
		}
	}
	info.invoke = func(ctx context.Context, call *CallContext, batch arrow.RecordBatch) (arrow.RecordBatch, error) {
		val, err := deserializeParams(batch, paramsType)
		if err != nil {
			return nil, &RpcError{Type: ErrTypeType, Message: fmt.Sprintf("parameter deserialization: %v", err)}
		}
		return handler(ctx, call, val.Interface().(P))
	}

	s.mu.Lock()
	s.methods[name] = info
	s.mu.Unlock()
}

func (s *Server) method(name string) (*methodInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.methods[name]
	return info, ok
}

func (s *Server) availableMethods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunStdio serves requests on stdin/stdout until stdin closes.
func (s *Server) RunStdio(ctx context.Context) {
	// Writes to a closed pipe must return errors rather than kill the
	// process.
	signal.Ignore(syscall.SIGPIPE)

	if isTerminal(os.Stdin) || isTerminal(os.Stdout) {
		fmt.Fprintln(os.Stderr,
			"WARNING: This process communicates via Arrow IPC on stdin/stdout "+
				"and is not intended to be run interactively.")
	}
	s.ServeWithContext(ctx, os.Stdin, os.Stdout)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Serve runs the server loop on the given reader/writer pair.
func (s *Server) Serve(r io.Reader, w io.Writer) {
	s.ServeWithContext(context.Background(), r, w)
}

// ServeWithContext runs the server loop until r is exhausted, a transport
// error occurs or ctx is done.
func (s *Server) ServeWithContext(ctx context.Context, r io.Reader, w io.Writer) {
	for ctx.Err() == nil {
		if err := s.serveOne(ctx, r, w); err != nil {
			if !isTransportClosed(err) {
				s.logger.Error("serve loop error", "err", err)
			}
			return
		}
	}
}

// ServeUnix accepts connections on a unix socket at path and serves each
// on its own goroutine until ctx is done.
func (s *Server) ServeUnix(ctx context.Context, path string) error {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves connections accepted from ln until ctx is done.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.logger.Debug("accepted connection", "remote", conn.RemoteAddr().String())
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			s.ServeWithContext(ctx, conn, conn)
		}()
	}
}

// serveOne handles one request-response cycle. Errors returned stop the
// serve loop; call failures are written to w instead.
func (s *Server) serveOne(ctx context.Context, r io.Reader, w io.Writer) error {
	req, err := ReadRequest(r)
	if err != nil {
		var rpcErr *RpcError
		if errors.As(err, &rpcErr) {
			return writeErrorResponse(w, rpcErr, s.serverID, "", s.debugErrors)
		}
		return err
	}
	defer req.Batch.Release()

	_, err = s.dispatch(ctx, w, req)
	return err
}

// dispatch runs one parsed request and writes the response stream. It
// returns the call failure, which was already written to w, separately from
// the transport error.
func (s *Server) dispatch(ctx context.Context, w io.Writer, req *Request) (callErr, writeErr error) {
	if req.Method == DescribeMethod {
		return nil, s.writeDescribe(w)
	}

	info, ok := s.method(req.Method)
	if !ok {
		callErr = &RpcError{
			Type:    ErrTypeAttribute,
			Message: fmt.Sprintf("Unknown method: '%s'. Available methods: %v", req.Method, s.availableMethods()),
		}
		return callErr, writeErrorResponse(w, callErr, s.serverID, req.RequestID, s.debugErrors)
	}

	dispatchInfo := DispatchInfo{
		Method:            req.Method,
		ServerID:          s.serverID,
		RequestID:         req.RequestID,
		TransportMetadata: req.Metadata,
	}
	stats := &CallStatistics{}
	ctx, token, hookActive := s.hookStart(ctx, dispatchInfo)

	call := &CallContext{
		RequestID: req.RequestID,
		ServerID:  s.serverID,
		Method:    req.Method,
	}
	if lvl, ok := ParseLogLevel(req.LogLevel); ok {
		call.LogLevel = lvl
	} else {
		s.logger.Warn("unknown client log level", "level", req.LogLevel, "request_id", req.RequestID)
		call.LogLevel = LogTrace
	}
	stats.RecordInput(req.Batch.NumRows(), batchBufferSize(req.Batch))

	result, callErr := s.invoke(ctx, info, call, req.Batch)
	logs := call.drainLogs()
	for _, m := range logs {
		s.logger.Log(ctx, m.Level.slogLevel(), m.Message, "method", req.Method, "request_id", req.RequestID)
	}

	if callErr != nil {
		s.logger.Debug("call failed", "method", req.Method, "request_id", req.RequestID, "err", callErr)
		writeErr = writeResponse(w, arrow.NewSchema(nil, nil), logs, nil, callErr, s.serverID, req.RequestID, s.debugErrors)
	} else {
		stats.RecordOutput(result.NumRows(), batchBufferSize(result))
		writeErr = writeResponse(w, result.Schema(), logs, result, nil, s.serverID, req.RequestID, s.debugErrors)
		result.Release()
	}

	if hookActive {
		s.hookEnd(ctx, token, dispatchInfo, stats, callErr)
	}
	return callErr, writeErr
}

// invoke calls the handler, turning a panic into a RuntimeError.
func (s *Server) invoke(ctx context.Context, info *methodInfo, call *CallContext, batch arrow.RecordBatch) (result arrow.RecordBatch, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			s.logger.Error("handler panic", "method", info.Name, "panic", rv)
			result, err = nil, &RpcError{Type: ErrTypeRuntime, Message: fmt.Sprint(rv)}
		}
	}()
	result, err = info.invoke(ctx, call, batch)
	if err == nil && result == nil {
		err = &RpcError{Type: ErrTypeSerialization, Message: fmt.Sprintf("method %q returned no result", info.Name)}
	}
	return result, err
}

func (s *Server) hookStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken, bool) {
	if s.dispatchHook == nil {
		return ctx, nil, false
	}
	var token HookToken
	active := false
	func() {
		defer func() {
			if rv := recover(); rv != nil {
				s.logger.Error("dispatch hook start panic", "err", rv)
			}
		}()
		hookCtx, t := s.dispatchHook.OnDispatchStart(ctx, info)
		if hookCtx != nil {
			ctx = hookCtx
		}
		token = t
		active = true
	}()
	return ctx, token, active
}

func (s *Server) hookEnd(ctx context.Context, token HookToken, info DispatchInfo, stats *CallStatistics, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			s.logger.Error("dispatch hook end panic", "err", rv)
		}
	}()
	s.dispatchHook.OnDispatchEnd(ctx, token, info, stats, err)
}

// isTransportClosed reports errors that mean the peer went away.
func isTransportClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF")
}
