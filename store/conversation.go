package store

import (
	"context"
	"strconv"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/chatarbor/arbor/internal/base"
)

type Conversation struct {
	UID       string
	Title     string
	CreatedTs int64
	UpdatedTs int64
	ID        int32
	// MessageCount is populated by ListConversations with a JOIN.
	MessageCount int32
	// Messages is populated only by GetConversationWithMessages.
	Messages []*Message
}

type FindConversation struct {
	ID    *int32
	UID   *string
	Title *string
	// TitleSearch matches the substring anywhere in the title. Matching is
	// backend-default: ASCII case-insensitive on SQLite, case-sensitive on
	// PostgreSQL.
	TitleSearch *string
	Limit       *int
	Offset      *int
}

type UpdateConversation struct {
	Title     *string
	UpdatedTs *int64
	ID        int32
}

type DeleteConversation struct {
	ID int32
}

func conversationCacheKey(id int32) string {
	return strconv.Itoa(int(id))
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	if !base.UIDMatcher.MatchString(create.UID) {
		return nil, errors.New("invalid uid")
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}

	return record(s, "conversation", "create", func() (*Conversation, error) {
		return s.driver.CreateConversation(ctx, create)
	})
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	if find.Limit == nil {
		// Default the window on a copy; the caller's find must not change.
		defaultLimit := 100
		copied := *find
		copied.Limit = &defaultLimit
		find = &copied
	}

	return record(s, "conversation", "list", func() ([]*Conversation, error) {
		return s.driver.ListConversations(ctx, find)
	})
}

// GetConversation returns the first match for find, or nil when absent.
// Pure id lookups are served from the cache when possible.
func (s *Store) GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error) {
	byIDOnly := find.ID != nil && find.UID == nil && find.Title == nil && find.TitleSearch == nil
	if byIDOnly {
		if v, ok := s.conversationCache.Get(conversationCacheKey(*find.ID)); ok {
			s.metrics.cacheHits.Inc()
			// Hand out a copy so caller mutations cannot pollute the cache.
			cached := *v.(*Conversation)
			return &cached, nil
		}
		s.metrics.cacheMisses.Inc()
	}

	conversations, err := s.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return nil, nil
	}

	conversation := conversations[0]
	if byIDOnly {
		cached := *conversation
		s.conversationCache.Set(conversationCacheKey(conversation.ID), &cached, 0)
	}
	return conversation, nil
}

// GetConversationByTitle returns the conversation with the exact title, or nil.
func (s *Store) GetConversationByTitle(ctx context.Context, title string) (*Conversation, error) {
	return s.GetConversation(ctx, &FindConversation{Title: &title})
}

// ListRecentConversations returns up to limit conversations ordered by
// updated_ts descending, ties broken by id descending.
func (s *Store) ListRecentConversations(ctx context.Context, limit int) ([]*Conversation, error) {
	return s.ListConversations(ctx, &FindConversation{Limit: &limit})
}

// SearchConversationsByTitle returns conversations whose title contains term,
// most recently updated first.
func (s *Store) SearchConversationsByTitle(ctx context.Context, term string) ([]*Conversation, error) {
	return s.ListConversations(ctx, &FindConversation{TitleSearch: &term})
}

// GetConversationWithMessages returns the conversation with its messages
// eagerly attached in creation order, or nil when the conversation is absent.
func (s *Store) GetConversationWithMessages(ctx context.Context, id int32) (*Conversation, error) {
	conversation, err := s.GetConversation(ctx, &FindConversation{ID: &id})
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, nil
	}

	messages, err := s.ListMessages(ctx, &FindMessage{ConversationID: &id})
	if err != nil {
		return nil, err
	}

	// Copy before attaching: the cached record must not alias the message
	// slice handed to the caller.
	withMessages := *conversation
	withMessages.Messages = messages
	return &withMessages, nil
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	if update.UpdatedTs == nil {
		now := time.Now().Unix()
		update.UpdatedTs = &now
	}

	conversation, err := record(s, "conversation", "update", func() (*Conversation, error) {
		return s.driver.UpdateConversation(ctx, update)
	})
	if err != nil {
		return nil, err
	}

	s.conversationCache.Delete(conversationCacheKey(update.ID))
	return conversation, nil
}

// DeleteConversation removes the conversation and, per schema cascade, all of
// its messages and their attachments. It reports whether a row existed.
func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) (bool, error) {
	deleted, err := record(s, "conversation", "delete", func() (bool, error) {
		return s.driver.DeleteConversation(ctx, delete)
	})
	if err != nil {
		return false, err
	}

	s.conversationCache.Delete(conversationCacheKey(delete.ID))
	return deleted, nil
}
