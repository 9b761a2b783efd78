package store

import (
	"context"
	"time"
)

// Role identifies the author side of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is a node in a conversation tree. A nil ParentID marks a root
// (topic start); siblings are alternative continuations of their parent.
// ConversationID and ParentID are set at creation and never change, so the
// parent graph stays acyclic by construction.
type Message struct {
	NodeSummary    *string
	ParentID       *int32
	Role           Role
	Content        string
	CreatedTs      int64
	ID             int32
	ConversationID int32
	// Attachments is populated only by GetMessageWithAttachments.
	Attachments []*Attachment
}

type FindMessage struct {
	ID             *int32
	ConversationID *int32
	// ParentID filters to the direct children of a message.
	ParentID *int32
	// RootsOnly filters to messages without a parent.
	RootsOnly bool
	Role      *Role
	Limit     *int
	Offset    *int
}

type UpdateMessage struct {
	Content     *string
	NodeSummary *string
	ID          int32
}

type DeleteMessage struct {
	ID int32
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	message, err := record(s, "message", "create", func() (*Message, error) {
		return s.driver.CreateMessage(ctx, create)
	})
	if err != nil {
		return nil, err
	}

	// The cached conversation carries a message count; drop it.
	s.conversationCache.Delete(conversationCacheKey(message.ConversationID))
	return message, nil
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return record(s, "message", "list", func() ([]*Message, error) {
		return s.driver.ListMessages(ctx, find)
	})
}

// GetMessage returns the first match for find, or nil when absent.
func (s *Store) GetMessage(ctx context.Context, find *FindMessage) (*Message, error) {
	messages, err := s.ListMessages(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return messages[0], nil
}

// ListRootMessages returns the parentless messages of a conversation in
// creation order. A conversation may have several roots, or none.
func (s *Store) ListRootMessages(ctx context.Context, conversationID int32) ([]*Message, error) {
	return s.ListMessages(ctx, &FindMessage{ConversationID: &conversationID, RootsOnly: true})
}

// ListChildMessages returns the direct children of a message in creation
// order, not transitive descendants.
func (s *Store) ListChildMessages(ctx context.Context, parentID int32) ([]*Message, error) {
	return s.ListMessages(ctx, &FindMessage{ParentID: &parentID})
}

// ListMessagesByRole returns a conversation's messages with the given role.
func (s *Store) ListMessagesByRole(ctx context.Context, conversationID int32, role Role) ([]*Message, error) {
	return s.ListMessages(ctx, &FindMessage{ConversationID: &conversationID, Role: &role})
}

// GetThread walks the parent chain upward from the given message and returns
// the path in root-to-target order. A missing starting message yields an
// empty thread, not an error. A parent id that no longer resolves ends the
// walk with everything collected so far, so orphaned subtrees still produce
// a usable partial thread. The walk is iterative and re-resolves every hop
// by id, which keeps it safe under concurrent deletes and bounded even on
// corrupted data that forms a cycle.
func (s *Store) GetThread(ctx context.Context, messageID int32) ([]*Message, error) {
	thread := []*Message{}
	seen := map[int32]bool{}

	next := &messageID
	for next != nil && !seen[*next] {
		seen[*next] = true
		message, err := s.GetMessage(ctx, &FindMessage{ID: next})
		if err != nil {
			return nil, err
		}
		if message == nil {
			break
		}
		thread = append(thread, message)
		next = message.ParentID
	}

	// Collected target-to-root; callers want root-to-target.
	for i, j := 0, len(thread)-1; i < j; i, j = i+1, j-1 {
		thread[i], thread[j] = thread[j], thread[i]
	}
	return thread, nil
}

// GetMessageWithAttachments returns the message with its attachments eagerly
// attached in creation order, or nil when the message is absent.
func (s *Store) GetMessageWithAttachments(ctx context.Context, id int32) (*Message, error) {
	message, err := s.GetMessage(ctx, &FindMessage{ID: &id})
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, nil
	}

	attachments, err := s.ListAttachments(ctx, &FindAttachment{MessageID: &id})
	if err != nil {
		return nil, err
	}
	message.Attachments = attachments
	return message, nil
}

func (s *Store) UpdateMessage(ctx context.Context, update *UpdateMessage) (*Message, error) {
	return record(s, "message", "update", func() (*Message, error) {
		return s.driver.UpdateMessage(ctx, update)
	})
}

// DeleteMessage removes the message, its descendant branches and all their
// attachments. It reports whether a row existed.
func (s *Store) DeleteMessage(ctx context.Context, delete *DeleteMessage) (bool, error) {
	// Resolve the owning conversation first; the row is gone afterwards and
	// its cached record carries a message count.
	message, err := s.GetMessage(ctx, &FindMessage{ID: &delete.ID})
	if err != nil {
		return false, err
	}

	deleted, err := record(s, "message", "delete", func() (bool, error) {
		return s.driver.DeleteMessage(ctx, delete)
	})
	if err != nil {
		return false, err
	}

	if deleted && message != nil {
		s.conversationCache.Delete(conversationCacheKey(message.ConversationID))
	}
	return deleted, nil
}
