package postgres

import (
	"context"

	"github.com/pkg/errors"
)

const latestSchema = `
CREATE TABLE IF NOT EXISTS conversation (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL CHECK (title <> ''),
	created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
	updated_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
);

CREATE TABLE IF NOT EXISTS message (
	id SERIAL PRIMARY KEY,
	conversation_id INTEGER NOT NULL REFERENCES conversation (id) ON DELETE CASCADE,
	parent_id INTEGER REFERENCES message (id) ON DELETE CASCADE,
	role TEXT NOT NULL CHECK (role IN ('user', 'model')),
	content TEXT NOT NULL,
	node_summary TEXT,
	created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
);

CREATE INDEX IF NOT EXISTS idx_message_conversation_id ON message (conversation_id);
CREATE INDEX IF NOT EXISTS idx_message_parent_id ON message (parent_id);

CREATE TABLE IF NOT EXISTS attachment (
	id SERIAL PRIMARY KEY,
	message_id INTEGER NOT NULL REFERENCES message (id) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	external_ref TEXT NOT NULL,
	created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
);

CREATE INDEX IF NOT EXISTS idx_attachment_message_id ON attachment (message_id);
CREATE INDEX IF NOT EXISTS idx_attachment_external_ref ON attachment (external_ref);
`

// Migrate creates the schema. Statements are idempotent, so running it on an
// already-initialized database is harmless.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}
