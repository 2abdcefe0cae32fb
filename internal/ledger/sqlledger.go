package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SqlLedger implements Ledger with SQLite. The database is opened in WAL
// mode with synchronous=FULL so that a committed append survives a crash
// immediately after acknowledgment.
type SqlLedger struct {
	db *sql.DB
}

// Open opens or creates a SQLite ledger at path and runs migrations.
// Creates the parent directory (e.g. .bitledger) if it does not exist.
func Open(path string) (*SqlLedger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma synchronous: %w", err)
	}
	l := &SqlLedger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SqlLedger) migrate() error {
	var tableCount int
	err := l.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		// Fresh database.
		if _, err := l.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create v1 schema: %w", err)
		}
		if _, err := l.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersionV1); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	err = l.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		v = schemaVersionV1
		if _, err := l.db.Exec("INSERT INTO schema_version(version) VALUES(?)", v); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}

	switch v {
	case currentSchemaVersion:
		return nil
	default:
		return fmt.Errorf("unknown schema version %d", v)
	}
}

// Close closes the database connection.
func (l *SqlLedger) Close() error {
	return l.db.Close()
}

// Append inserts the event inside a transaction and returns its sequence
// number after commit. The sequence number is assigned by SQLite and is
// only handed back once the row is durable.
func (l *SqlLedger) Append(ctx context.Context, ev Event) (int64, error) {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events(candidate_id, episode_id, event_type, prev_status, new_status, reason, actor, payload_ref, note, at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.CandidateID, ev.EpisodeID, string(ev.Type),
		string(ev.PrevStatus), string(ev.NewStatus),
		ev.Reason, ev.Actor, ev.PayloadRef, ev.Note,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return seq, nil
}

// ReadSince returns events with seq > sinceSeq in sequence order.
func (l *SqlLedger) ReadSince(ctx context.Context, sinceSeq int64, limit int) ([]Event, error) {
	q := `SELECT seq, candidate_id, episode_id, event_type, prev_status, new_status, reason, actor, payload_ref, note, at
	      FROM events WHERE seq > ? ORDER BY seq`
	args := []any{sinceSeq}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest assigned sequence number (0 if empty).
func (l *SqlLedger) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := l.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM events").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var ev Event
	var episodeID, prevStatus, reason, actor, payloadRef, note sql.NullString
	var typ, newStatus, atStr string
	if err := rows.Scan(&ev.Seq, &ev.CandidateID, &episodeID, &typ,
		&prevStatus, &newStatus, &reason, &actor, &payloadRef, &note, &atStr); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.EpisodeID = episodeID.String
	ev.Type = EventType(typ)
	ev.PrevStatus = Status(prevStatus.String)
	ev.NewStatus = Status(newStatus)
	ev.Reason = reason.String
	ev.Actor = actor.String
	ev.PayloadRef = payloadRef.String
	ev.Note = note.String
	at, err := time.Parse(time.RFC3339Nano, atStr)
	if err != nil {
		return Event{}, fmt.Errorf("parse event time %q: %w", atStr, err)
	}
	ev.At = at
	return ev, nil
}
