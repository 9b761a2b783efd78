package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/chatarbor/arbor/store"
)

func (d *DB) CreateAttachment(ctx context.Context, create *store.Attachment) (*store.Attachment, error) {
	return execTx(ctx, d.db, func(tx *sql.Tx) (*store.Attachment, error) {
		args := []any{create.MessageID, create.Filename, create.ExternalRef, create.CreatedTs}
		stmt := `INSERT INTO attachment (message_id, filename, external_ref, created_ts)
			VALUES (` + placeholders(len(args)) + `)
			RETURNING id`
		if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
			return nil, fmt.Errorf("failed to create attachment: %w", err)
		}
		return create, nil
	})
}

func (d *DB) ListAttachments(ctx context.Context, find *store.FindAttachment) ([]*store.Attachment, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "a.id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.MessageID != nil {
		where, args = append(where, "a.message_id = "+placeholder(len(args)+1)), append(args, *find.MessageID)
	}
	if find.Filename != nil {
		where, args = append(where, "a.filename = "+placeholder(len(args)+1)), append(args, *find.Filename)
	}
	if find.ExternalRef != nil {
		where, args = append(where, "a.external_ref = "+placeholder(len(args)+1)), append(args, *find.ExternalRef)
	}
	if find.ConversationID != nil {
		where, args = append(where, "m.conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}

	query := `SELECT a.id, a.message_id, a.filename, a.external_ref, a.created_ts
		FROM attachment a
		JOIN message m ON m.id = a.message_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY a.created_ts ASC, a.id ASC`

	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET " + placeholder(len(args)+1)
			args = append(args, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Attachment, 0)
	for rows.Next() {
		a := &store.Attachment{}
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Filename, &a.ExternalRef, &a.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateAttachment(ctx context.Context, update *store.UpdateAttachment) (*store.Attachment, error) {
	set, args := []string{}, []any{}

	if update.Filename != nil {
		set, args = append(set, "filename = "+placeholder(len(args)+1)), append(args, *update.Filename)
	}
	if update.ExternalRef != nil {
		set, args = append(set, "external_ref = "+placeholder(len(args)+1)), append(args, *update.ExternalRef)
	}
	if len(set) == 0 {
		// Nothing to change; act as a no-op and return the current row.
		list, err := d.ListAttachments(ctx, &store.FindAttachment{ID: &update.ID})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE attachment SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, message_id, filename, external_ref, created_ts`

	return execTx(ctx, d.db, func(tx *sql.Tx) (*store.Attachment, error) {
		a := &store.Attachment{}
		err := tx.QueryRowContext(ctx, stmt, args...).Scan(&a.ID, &a.MessageID, &a.Filename, &a.ExternalRef, &a.CreatedTs)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to update attachment: %w", err)
		}
		return a, nil
	})
}

func (d *DB) DeleteAttachment(ctx context.Context, delete *store.DeleteAttachment) (bool, error) {
	return execTx(ctx, d.db, func(tx *sql.Tx) (bool, error) {
		result, err := tx.ExecContext(ctx, `DELETE FROM attachment WHERE id = `+placeholder(1), delete.ID)
		if err != nil {
			return false, fmt.Errorf("failed to delete attachment: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to read rows affected: %w", err)
		}
		return rows > 0, nil
	})
}
