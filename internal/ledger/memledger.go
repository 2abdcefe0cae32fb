package ledger

import (
	"context"
	"sync"
	"time"
)

// MemLedger is an in-memory Ledger for tests and ephemeral runs. Same
// contract as SqlLedger minus durability across process restarts.
type MemLedger struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemLedger returns an empty in-memory ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{}
}

// Append stores the event and returns its sequence number (1-based).
func (l *MemLedger) Append(_ context.Context, ev Event) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ev.Seq = int64(len(l.events)) + 1
	l.events = append(l.events, ev)
	return ev.Seq, nil
}

// ReadSince returns events with Seq > sinceSeq in sequence order.
func (l *MemLedger) ReadSince(_ context.Context, sinceSeq int64, limit int) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := int(sinceSeq)
	if start < 0 {
		start = 0
	}
	if start >= len(l.events) {
		return nil, nil
	}
	tail := l.events[start:]
	if limit > 0 && limit < len(tail) {
		tail = tail[:limit]
	}
	out := make([]Event, len(tail))
	copy(out, tail)
	return out, nil
}

// LastSeq returns the highest assigned sequence number (0 if empty).
func (l *MemLedger) LastSeq(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.events)), nil
}

// Close is a no-op for the in-memory ledger.
func (l *MemLedger) Close() error { return nil }
