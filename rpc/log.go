// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"log/slog"
	"strings"
)

// LogLevel is the severity of a log message sent back to the client in
// the response stream, ahead of the result batch.
type LogLevel string

const (
	LogException LogLevel = "EXCEPTION"
	LogError     LogLevel = "ERROR"
	LogWarn      LogLevel = "WARN"
	LogInfo      LogLevel = "INFO"
	LogDebug     LogLevel = "DEBUG"
	LogTrace     LogLevel = "TRACE"
)

// levels is ordered from most to least severe.
var levels = []LogLevel{LogException, LogError, LogWarn, LogInfo, LogDebug, LogTrace}

// severity returns the index of level in levels; unknown levels sort
// after TRACE.
func (l LogLevel) severity() int {
	for i, v := range levels {
		if v == l {
			return i
		}
	}
	return len(levels)
}

// Enabled reports whether a message at msg passes a threshold of l.
func (l LogLevel) Enabled(msg LogLevel) bool {
	return msg.severity() <= l.severity()
}

// ParseLogLevel accepts a level name in any case. An empty string is TRACE,
// so every message is returned.
func ParseLogLevel(s string) (LogLevel, bool) {
	if s == "" {
		return LogTrace, true
	}
	l := LogLevel(strings.ToUpper(s))
	if l.severity() == len(levels) {
		return "", false
	}
	return l, true
}

// slogLevel maps l onto the server-side logger's levels.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogException, LogError:
		return slog.LevelError
	case LogWarn:
		return slog.LevelWarn
	case LogInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// KV is one structured extra attached to a LogMessage.
type KV struct {
	Key   string
	Value string
}

// LogMessage is a queued client log record.
type LogMessage struct {
	Level   LogLevel
	Message string
	Extras  map[string]string
}
