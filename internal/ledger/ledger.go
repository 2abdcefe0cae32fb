// Package ledger holds the append-only event log: the system's source of
// truth for candidate lifecycle history. Appends assign monotonically
// increasing sequence numbers and are durable before they are acknowledged.
// Entries are never edited or deleted; every other view (candidate store,
// audit summaries) is derived by folding this log.
package ledger

import "context"

// DefaultDBPath is the default relative path for the SQLite ledger DB.
// Resolve against cwd; Open() creates the parent dir (e.g. .bitledger).
const DefaultDBPath = ".bitledger/ledger.db"

// Ledger is the append-only event log. Append is the sole mutation
// primitive; it does not validate transitions (the lifecycle engine does
// that before calling it) and must not acknowledge an event that could be
// lost on an immediately following crash.
type Ledger interface {
	// Append durably stores the event and returns its sequence number.
	Append(ctx context.Context, ev Event) (int64, error)
	// ReadSince returns events with Seq > sinceSeq in sequence order.
	// limit <= 0 means no limit.
	ReadSince(ctx context.Context, sinceSeq int64, limit int) ([]Event, error)
	// LastSeq returns the highest assigned sequence number (0 if empty).
	LastSeq(ctx context.Context) (int64, error)
	Close() error
}
