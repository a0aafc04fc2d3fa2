package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrRpc matches any *RpcError with errors.Is.
var ErrRpc = &RpcError{}

// RpcError is an error carried over the wire.
type RpcError struct {
	Type      string // e.g. "ValueError", "KeyError"
	Message   string
	Traceback string
	RequestID string
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is supports errors.Is by matching any *RpcError target.
func (e *RpcError) Is(target error) bool {
	_, ok := target.(*RpcError)
	return ok
}

// Error types used by this package and its methods.
const (
	ErrTypeProtocol      = "ProtocolError"
	ErrTypeVersion       = "VersionError"
	ErrTypeAttribute     = "AttributeError"
	ErrTypeType          = "TypeError"
	ErrTypeValue         = "ValueError"
	ErrTypeKey           = "KeyError"
	ErrTypeRuntime       = "RuntimeError"
	ErrTypeCancelled     = "CancelledError"
	ErrTypeSerialization = "SerializationError"
)

// errorType names err for the wire.
func errorType(err error) string {
	var rpcErr *RpcError
	if errors.As(err, &rpcErr) {
		return rpcErr.Type
	}
	return ErrTypeRuntime
}

// stackFrame is one frame of the error batch log_extra.
type stackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// errorExtra is the JSON written to vgi_rpc.log_extra on EXCEPTION batches.
type errorExtra struct {
	ExceptionType    string       `json:"exception_type"`
	ExceptionMessage string       `json:"exception_message"`
	Traceback        string       `json:"traceback,omitempty"`
	Frames           []stackFrame `json:"frames,omitempty"`
}

// buildErrorExtra encodes err for vgi_rpc.log_extra. Stack details are only
// included when debug is set.
func buildErrorExtra(err error, debug bool) string {
	extra := errorExtra{
		ExceptionType:    errorType(err),
		ExceptionMessage: errorMessage(err),
	}

	if debug {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		extra.Traceback = string(buf[:n])

		pcs := make([]uintptr, 10)
		n = runtime.Callers(2, pcs)
		frames := runtime.CallersFrames(pcs[:n])
		for len(extra.Frames) < 5 {
			frame, more := frames.Next()
			extra.Frames = append(extra.Frames, stackFrame{
				File:     frame.File,
				Line:     frame.Line,
				Function: frame.Function,
			})
			if !more {
				break
			}
		}
	}

	data, _ := json.Marshal(extra)
	return string(data)
}

// errorMessage is err's message without the "Type: " prefix RpcError adds.
func errorMessage(err error) string {
	var rpcErr *RpcError
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	return err.Error()
}

// parseErrorExtra rebuilds an RpcError from an EXCEPTION batch.
func parseErrorExtra(message, extraJSON, requestID string) *RpcError {
	rpcErr := &RpcError{Type: ErrTypeRuntime, Message: message, RequestID: requestID}
	var extra errorExtra
	if extraJSON != "" && json.Unmarshal([]byte(extraJSON), &extra) == nil {
		if extra.ExceptionType != "" {
			rpcErr.Type = extra.ExceptionType
		}
		if extra.ExceptionMessage != "" {
			rpcErr.Message = extra.ExceptionMessage
		}
		rpcErr.Traceback = extra.Traceback
	}
	rpcErr.Message = strings.TrimPrefix(rpcErr.Message, rpcErr.Type+": ")
	return rpcErr
}
