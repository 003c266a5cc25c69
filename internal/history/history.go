// Package history persists submitted messages in PostgreSQL so a clinician
// can review what was sent, when, and under which redactions.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is one submitted message as stored.
type Message struct {
	// ID is assigned by the database.
	ID int64

	// ChatID identifies the conversation the message was submitted to.
	ChatID string

	// Transcript is the stored transcript content.
	Transcript Transcript

	// PIITypes lists the categories redacted before submission, empty when
	// the scan was clean.
	PIITypes []string

	// TotalTokens is the server's usage accounting for the submission.
	TotalTokens int

	// SubmittedAt is when the message was recorded.
	SubmittedAt time.Time
}

// Store is the PostgreSQL-backed message history. All methods are safe for
// concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	format PayloadFormat
}

// NewStore connects to the database at dsn, ensures the schema exists, and
// returns a store writing transcripts in the given format.
func NewStore(ctx context.Context, dsn string, format PayloadFormat) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}
	return &Store{pool: pool, format: format}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Record appends a submitted message. The message's ID and SubmittedAt are
// ignored on input; the database assigns both.
func (s *Store) Record(ctx context.Context, m Message) error {
	payload, err := encodePayload(s.format, m.Transcript)
	if err != nil {
		return fmt.Errorf("history store: encode payload: %w", err)
	}

	const q = `
		INSERT INTO submitted_messages (chat_id, payload, pii_types, total_tokens)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, m.ChatID, payload, m.PIITypes, m.TotalTokens); err != nil {
		return fmt.Errorf("history store: record message: %w", err)
	}
	return nil
}

// Recent returns the latest messages for a chat, newest first. limit <= 0
// means no limit.
func (s *Store) Recent(ctx context.Context, chatID string, limit int) ([]Message, error) {
	q := `
		SELECT id, chat_id, payload, pii_types, total_tokens, submitted_at
		FROM   submitted_messages
		WHERE  chat_id = $1
		ORDER  BY submitted_at DESC, id DESC`
	args := []any{chatID}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}
	return collectMessages(rows)
}

// collectMessages scans all rows into messages, decoding each stored
// payload with the malformed-row fallback.
func collectMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m       Message
			payload string
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &payload, &m.PIITypes, &m.TotalTokens, &m.SubmittedAt); err != nil {
			return nil, fmt.Errorf("history store: scan row: %w", err)
		}
		m.Transcript = decodePayload(payload)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history store: iterate rows: %w", err)
	}
	return out, nil
}
