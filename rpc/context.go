// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpc

// CallContext carries request-scoped identifiers and the client log buffer
// into method handlers.
type CallContext struct {
	RequestID string
	ServerID  string
	Method    string
	// LogLevel is the client-requested minimum severity. ClientLog drops
	// anything less severe.
	LogLevel LogLevel
	logs     []LogMessage
}

// ClientLog queues a log message for the response.
func (c *CallContext) ClientLog(level LogLevel, msg string, extras ...KV) {
	if !c.LogLevel.Enabled(level) {
		return
	}
	m := LogMessage{Level: level, Message: msg}
	if len(extras) > 0 {
		m.Extras = make(map[string]string, len(extras))
		for _, kv := range extras {
			m.Extras[kv.Key] = kv.Value
		}
	}
	c.logs = append(c.logs, m)
}

func (c *CallContext) drainLogs() []LogMessage {
	logs := c.logs
	c.logs = nil
	return logs
}
