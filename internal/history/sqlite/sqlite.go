package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pairwave/pairwave-server/internal/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id        TEXT PRIMARY KEY,
	room      TEXT NOT NULL,
	sender    TEXT NOT NULL,
	body      TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	read      BOOLEAN NOT NULL DEFAULT 0,
	read_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages(room, timestamp);

CREATE TABLE IF NOT EXISTS call_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	room      TEXT NOT NULL,
	sender    TEXT NOT NULL,
	recipient TEXT NOT NULL DEFAULT '',
	type      TEXT NOT NULL,
	payload   TEXT NOT NULL DEFAULT '{}',
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_events_room_ts ON call_events(room, timestamp);
CREATE INDEX IF NOT EXISTS idx_call_events_recipient_ts ON call_events(recipient, timestamp);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	identity   TEXT PRIMARY KEY,
	descriptor TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store implements history.Gateway on SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendMessage persists a chat message and returns its assigned id.
func (s *Store) AppendMessage(ctx context.Context, rec *history.MessageRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO messages (id, room, sender, body, timestamp, read)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		id, rec.Room, rec.Sender, rec.Body, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Read)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	rec.ID = id
	return id, nil
}

// AppendCallEvent persists a call signaling event.
func (s *Store) AppendCallEvent(ctx context.Context, rec *history.CallEventRecord) error {
	payload := rec.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	query := `
		INSERT INTO call_events (room, sender, recipient, type, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.Room, rec.Sender, rec.Recipient, rec.Type, string(payload), rec.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert call event: %w", err)
	}
	return nil
}

// MarkRead flips the read flag on a persisted message.
func (s *Store) MarkRead(ctx context.Context, messageID string, at time.Time) error {
	query := `
		UPDATE messages SET read = 1, read_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339Nano), messageID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message %s not found", messageID)
	}
	return nil
}

// RecentMessages returns up to limit messages for a room, newest first.
func (s *Store) RecentMessages(ctx context.Context, room string, limit int) ([]history.MessageRecord, error) {
	query := `
		SELECT id, room, sender, body, timestamp, read, COALESCE(read_at, '')
		FROM messages
		WHERE room = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []history.MessageRecord
	for rows.Next() {
		var rec history.MessageRecord
		var ts, readAt string
		if err := rows.Scan(&rec.ID, &rec.Room, &rec.Sender, &rec.Body, &ts, &rec.Read, &readAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		if readAt != "" {
			t, err := time.Parse(time.RFC3339Nano, readAt)
			if err != nil {
				return nil, fmt.Errorf("parse read_at: %w", err)
			}
			rec.ReadAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentCallEvents returns up to limit call events addressed to an identity, newest first.
func (s *Store) RecentCallEvents(ctx context.Context, recipient string, limit int) ([]history.CallEventRecord, error) {
	query := `
		SELECT room, sender, recipient, type, payload, timestamp
		FROM call_events
		WHERE recipient = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("query call events: %w", err)
	}
	defer rows.Close()

	var out []history.CallEventRecord
	for rows.Next() {
		var rec history.CallEventRecord
		var ts, payload string
		if err := rows.Scan(&rec.Room, &rec.Sender, &rec.Recipient, &rec.Type, &payload, &ts); err != nil {
			return nil, fmt.Errorf("scan call event: %w", err)
		}
		rec.Payload = []byte(payload)
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveSubscription upserts the identity's push subscription descriptor.
func (s *Store) SaveSubscription(ctx context.Context, identity string, descriptor []byte) error {
	query := `
		INSERT INTO push_subscriptions (identity, descriptor, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET descriptor = excluded.descriptor, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, identity, string(descriptor), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// Subscription returns the identity's push subscription descriptor, or nil if none is stored.
func (s *Store) Subscription(ctx context.Context, identity string) ([]byte, error) {
	query := `SELECT descriptor FROM push_subscriptions WHERE identity = ?`

	var descriptor string
	err := s.db.QueryRowContext(ctx, query, identity).Scan(&descriptor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	return []byte(descriptor), nil
}
