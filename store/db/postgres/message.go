package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/chatarbor/arbor/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	return execTx(ctx, d.db, func(tx *sql.Tx) (*store.Message, error) {
		// The parent, when set, must live in the same conversation. The
		// foreign key alone cannot express that, so check it inside the
		// transaction before inserting.
		if create.ParentID != nil {
			var parentConversationID int32
			err := tx.QueryRowContext(ctx, `SELECT conversation_id FROM message WHERE id = `+placeholder(1), *create.ParentID).Scan(&parentConversationID)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("parent message %d not found", *create.ParentID)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to resolve parent message: %w", err)
			}
			if parentConversationID != create.ConversationID {
				return nil, fmt.Errorf("parent message %d belongs to conversation %d, not %d", *create.ParentID, parentConversationID, create.ConversationID)
			}
		}

		args := []any{create.ConversationID, create.ParentID, create.Role, create.Content, create.NodeSummary, create.CreatedTs}
		stmt := `INSERT INTO message (conversation_id, parent_id, role, content, node_summary, created_ts)
			VALUES (` + placeholders(len(args)) + `)
			RETURNING id`
		if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
			return nil, fmt.Errorf("failed to create message: %w", err)
		}
		return create, nil
	})
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}
	if find.ParentID != nil {
		where, args = append(where, "parent_id = "+placeholder(len(args)+1)), append(args, *find.ParentID)
	}
	if find.RootsOnly {
		where = append(where, "parent_id IS NULL")
	}
	if find.Role != nil {
		where, args = append(where, "role = "+placeholder(len(args)+1)), append(args, string(*find.Role))
	}

	query := `SELECT id, conversation_id, parent_id, role, content, node_summary, created_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC`

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
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var parentID sql.NullInt32
		var nodeSummary sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &parentID, &m.Role, &m.Content, &nodeSummary, &m.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if parentID.Valid {
			m.ParentID = &parentID.Int32
		}
		if nodeSummary.Valid {
			m.NodeSummary = &nodeSummary.String
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*store.Message, error) {
	set, args := []string{}, []any{}

	if update.Content != nil {
		set, args = append(set, "content = "+placeholder(len(args)+1)), append(args, *update.Content)
	}
	if update.NodeSummary != nil {
		set, args = append(set, "node_summary = "+placeholder(len(args)+1)), append(args, *update.NodeSummary)
	}
	if len(set) == 0 {
		// Nothing to change; act as a no-op and return the current row.
		list, err := d.ListMessages(ctx, &store.FindMessage{ID: &update.ID})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE message SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, conversation_id, parent_id, role, content, node_summary, created_ts`

	return execTx(ctx, d.db, func(tx *sql.Tx) (*store.Message, error) {
		m := &store.Message{}
		var parentID sql.NullInt32
		var nodeSummary sql.NullString
		err := tx.QueryRowContext(ctx, stmt, args...).Scan(&m.ID, &m.ConversationID, &parentID, &m.Role, &m.Content, &nodeSummary, &m.CreatedTs)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to update message: %w", err)
		}
		if parentID.Valid {
			m.ParentID = &parentID.Int32
		}
		if nodeSummary.Valid {
			m.NodeSummary = &nodeSummary.String
		}
		return m, nil
	})
}

func (d *DB) DeleteMessage(ctx context.Context, delete *store.DeleteMessage) (bool, error) {
	return execTx(ctx, d.db, func(tx *sql.Tx) (bool, error) {
		// The self-referencing cascade removes descendant branches, and the
		// attachment cascade removes their files, recursively.
		result, err := tx.ExecContext(ctx, `DELETE FROM message WHERE id = `+placeholder(1), delete.ID)
		if err != nil {
			return false, fmt.Errorf("failed to delete message: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to read rows affected: %w", err)
		}
		return rows > 0, nil
	})
}
