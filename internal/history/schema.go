package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSubmittedMessages = `
CREATE TABLE IF NOT EXISTS submitted_messages (
    id           BIGSERIAL    PRIMARY KEY,
    chat_id      TEXT         NOT NULL,
    payload      TEXT         NOT NULL,
    pii_types    TEXT[]       NOT NULL DEFAULT '{}',
    total_tokens INTEGER      NOT NULL DEFAULT 0,
    submitted_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submitted_messages_chat_id
    ON submitted_messages (chat_id);

CREATE INDEX IF NOT EXISTS idx_submitted_messages_chat_submitted
    ON submitted_messages (chat_id, submitted_at);
`

// Migrate ensures the history schema exists. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSubmittedMessages); err != nil {
		return fmt.Errorf("history migrate: %w", err)
	}
	return nil
}
