package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/chatarbor/arbor/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	return execTx(ctx, d.db, func(tx *sql.Tx) (*store.Conversation, error) {
		stmt := `INSERT INTO conversation (uid, title, created_ts, updated_ts)
			VALUES (?, ?, ?, ?)
			RETURNING id`
		if err := tx.QueryRowContext(ctx, stmt, create.UID, create.Title, create.CreatedTs, create.UpdatedTs).Scan(&create.ID); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		return create, nil
	})
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "c.id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "c.uid = ?"), append(args, *find.UID)
	}
	if find.Title != nil {
		where, args = append(where, "c.title = ?"), append(args, *find.Title)
	}
	if find.TitleSearch != nil {
		where, args = append(where, "c.title LIKE ?"), append(args, "%"+*find.TitleSearch+"%")
	}

	// LEFT JOIN + COUNT returns conversations with their message counts in a
	// single query.
	query := `
		SELECT
			c.id, c.uid, c.title, c.created_ts, c.updated_ts,
			COALESCE(COUNT(m.id), 0) AS message_count
		FROM conversation c
		LEFT JOIN message m ON m.conversation_id = c.id
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY c.id, c.uid, c.title, c.created_ts, c.updated_ts
		ORDER BY c.updated_ts DESC, c.id DESC`

	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET ?"
			args = append(args, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c := &store.Conversation{}
		if err := rows.Scan(&c.ID, &c.UID, &c.Title, &c.CreatedTs, &c.UpdatedTs, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = ?"), append(args, *update.Title)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		// Nothing to change; act as a no-op and return the current row.
		list, err := d.ListConversations(ctx, &store.FindConversation{ID: &update.ID})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE id = ?
		RETURNING id, uid, title, created_ts, updated_ts`

	return execTx(ctx, d.db, func(tx *sql.Tx) (*store.Conversation, error) {
		c := &store.Conversation{}
		err := tx.QueryRowContext(ctx, stmt, args...).Scan(&c.ID, &c.UID, &c.Title, &c.CreatedTs, &c.UpdatedTs)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to update conversation: %w", err)
		}
		return c, nil
	})
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) (bool, error) {
	return execTx(ctx, d.db, func(tx *sql.Tx) (bool, error) {
		// Messages and their attachments go with the conversation via
		// ON DELETE CASCADE.
		result, err := tx.ExecContext(ctx, `DELETE FROM conversation WHERE id = ?`, delete.ID)
		if err != nil {
			return false, fmt.Errorf("failed to delete conversation: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to read rows affected: %w", err)
		}
		return rows > 0, nil
	})
}
