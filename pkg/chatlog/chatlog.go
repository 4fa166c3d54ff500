// Package chatlog implements the default ports.ChatStore: an append-only,
// in-process transcript of the backoff/consult loop's exchanges with the
// advisor (spec.md §3 ChatMessage, §6 "Chat store"). Grounded on
// internal/conversation's Message/Response shape (role-tagged, metadata-
// bearing entries), generalized from a request/response pair into a single
// append-only log entry type, and on the clock-stamped timestamping pattern
// used throughout resilience's own event records.
package chatlog

import (
	"context"
	"sync"

	"github.com/itsneelabh/selfheal/pkg/ports"
)

// Log is an in-process, append-only ports.ChatStore bounded by a capacity
// (oldest entries are dropped once exceeded, mirroring pkg/memory.Ring's
// capacity discipline, since the consult transcript is advisory history,
// not an audit trail that must never shrink).
type Log struct {
	mu       sync.Mutex
	clock    ports.Clock
	capacity int
	entries  []ports.ChatMessage
}

const defaultCapacity = 1000

// New creates a Log using clock for message timestamps.
func New(clock ports.Clock) *Log {
	return &Log{clock: clock, capacity: defaultCapacity}
}

var _ ports.ChatStore = (*Log)(nil)

// Append records one message (spec.md §6 append(role, content, meta?)).
func (l *Log) Append(_ context.Context, role ports.Role, content string, meta map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, ports.ChatMessage{
		Role:    role,
		Content: content,
		Meta:    meta,
		TsMS:    l.clock.NowMS(),
	})
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	return nil
}

// Tail returns the last n messages, oldest first (spec.md §6 tail(n)).
func (l *Log) Tail(_ context.Context, n int) ([]ports.ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	start := len(l.entries) - n
	out := make([]ports.ChatMessage, n)
	copy(out, l.entries[start:])
	return out, nil
}
