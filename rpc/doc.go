// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package rpc implements unary calls over the vgi_rpc protocol, an Apache
// Arrow IPC based RPC framework.
//
// Every request is a complete IPC stream holding one single-row batch of
// parameters. Custom batch metadata carries the method name, the protocol
// version and an optional request ID and log level. The response is a
// complete IPC stream with zero or more zero-row log batches followed by
// either the result batch or a zero-row EXCEPTION batch whose
// vgi_rpc.log_extra JSON describes the error.
//
// # Struct tags
//
// Method parameters are Go structs annotated with `vgirpc` tags:
//
//	`vgirpc:"wire_name[,default=VALUE][,doc=TEXT]"`
//
// doc must be the last option. Pointer, slice and map fields become
// nullable columns; a null or missing column takes the default.
//
// # Transports
//
// [Server.Serve] runs the lockstep loop on any reader/writer pair, which
// covers stdio ([Server.RunStdio]) and unix sockets ([Server.ServeUnix]).
// [HttpServer] exposes the same methods at POST /vgi/{method} with
// optional zstd bodies, and serves HTML pages listing them at GET /vgi/ and
// /vgi/describe. [Client] and [HTTPClient] are the matching callers.
//
// # Introspection
//
// The built-in __describe__ method returns one row per registered method
// with its parameter schema, types, defaults and docs.
package rpc
