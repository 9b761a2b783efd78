package store

import (
	"context"
	"time"
)

// Attachment records file metadata attached to a message. The file content
// itself lives elsewhere; ExternalRef is an opaque reference the store never
// inspects, and nothing enforces its uniqueness.
type Attachment struct {
	Filename    string
	ExternalRef string
	CreatedTs   int64
	ID          int32
	MessageID   int32
}

type FindAttachment struct {
	ID        *int32
	MessageID *int32
	// ConversationID joins through the owning message.
	ConversationID *int32
	Filename       *string
	ExternalRef    *string
	Limit          *int
	Offset         *int
}

type UpdateAttachment struct {
	Filename    *string
	ExternalRef *string
	ID          int32
}

type DeleteAttachment struct {
	ID int32
}

func (s *Store) CreateAttachment(ctx context.Context, create *Attachment) (*Attachment, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	return record(s, "attachment", "create", func() (*Attachment, error) {
		return s.driver.CreateAttachment(ctx, create)
	})
}

// ListAttachments returns all matches; no limit is applied unless the caller
// sets one. Eager loads and per-conversation traversals need complete result
// sets, the same way message listing does.
func (s *Store) ListAttachments(ctx context.Context, find *FindAttachment) ([]*Attachment, error) {
	return record(s, "attachment", "list", func() ([]*Attachment, error) {
		return s.driver.ListAttachments(ctx, find)
	})
}

// GetAttachment returns the first match for find, or nil when absent.
func (s *Store) GetAttachment(ctx context.Context, find *FindAttachment) (*Attachment, error) {
	attachments, err := s.ListAttachments(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return nil, nil
	}
	return attachments[0], nil
}

// GetAttachmentByFilename returns the attachment of a message with the exact
// filename, or nil.
func (s *Store) GetAttachmentByFilename(ctx context.Context, messageID int32, filename string) (*Attachment, error) {
	return s.GetAttachment(ctx, &FindAttachment{MessageID: &messageID, Filename: &filename})
}

// GetAttachmentByExternalRef returns the first attachment carrying the given
// external reference. References are expected to be unique in practice, but
// the schema does not enforce it; first match wins.
func (s *Store) GetAttachmentByExternalRef(ctx context.Context, ref string) (*Attachment, error) {
	return s.GetAttachment(ctx, &FindAttachment{ExternalRef: &ref})
}

// ListAttachmentsByConversation returns every attachment in a conversation,
// joined through the owning messages, in creation order.
func (s *Store) ListAttachmentsByConversation(ctx context.Context, conversationID int32) ([]*Attachment, error) {
	return s.ListAttachments(ctx, &FindAttachment{ConversationID: &conversationID})
}

func (s *Store) UpdateAttachment(ctx context.Context, update *UpdateAttachment) (*Attachment, error) {
	return record(s, "attachment", "update", func() (*Attachment, error) {
		return s.driver.UpdateAttachment(ctx, update)
	})
}

// DeleteAttachment removes the attachment record. It reports whether a row
// existed. Only the metadata row is removed; the externally stored content is
// the caller's concern.
func (s *Store) DeleteAttachment(ctx context.Context, delete *DeleteAttachment) (bool, error) {
	return record(s, "attachment", "delete", func() (bool, error) {
		return s.driver.DeleteAttachment(ctx, delete)
	})
}
