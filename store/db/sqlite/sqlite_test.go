package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatarbor/arbor/internal/profile"
	"github.com/chatarbor/arbor/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	dir := t.TempDir()
	testProfile := &profile.Profile{
		Mode:                  "dev",
		Data:                  dir,
		Driver:                "sqlite",
		DSN:                   filepath.Join(dir, "arbor_test.db"),
		ConversationCacheTTL:  time.Minute,
		ConversationCacheSize: 16,
	}

	driver, err := NewDB(testProfile)
	require.NoError(t, err)

	s := store.New(driver, testProfile)
	require.NoError(t, s.Migrate(context.Background()))

	t.Cleanup(func() { s.Close() })
	return s
}

func createConversation(t *testing.T, s *store.Store, title string) *store.Conversation {
	t.Helper()
	c, err := s.CreateConversation(context.Background(), &store.Conversation{Title: title})
	require.NoError(t, err)
	return c
}

func createMessage(t *testing.T, s *store.Store, conversationID int32, parentID *int32, role store.Role, content string) *store.Message {
	t.Helper()
	m, err := s.CreateMessage(context.Background(), &store.Message{
		ConversationID: conversationID,
		ParentID:       parentID,
		Role:           role,
		Content:        content,
	})
	require.NoError(t, err)
	return m
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestCreateConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := createConversation(t, s, "Trip Planning")
	assert.NotZero(t, created.ID)
	assert.NotEmpty(t, created.UID)
	assert.NotZero(t, created.CreatedTs)
	assert.NotZero(t, created.UpdatedTs)

	got, err := s.GetConversation(ctx, &store.FindConversation{ID: &created.ID})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.UID, got.UID)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.CreatedTs, got.CreatedTs)
	assert.Equal(t, created.UpdatedTs, got.UpdatedTs)
}

func TestCreateConversationRejectsEmptyTitle(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateConversation(context.Background(), &store.Conversation{Title: ""})
	require.Error(t, err)
}

func TestCreateConversationRejectsInvalidUID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateConversation(context.Background(), &store.Conversation{Title: "x", UID: "not a valid uid!"})
	require.Error(t, err)
}

func TestGetConversationNotFound(t *testing.T) {
	s := newTestStore(t)

	missing := int32(9999)
	got, err := s.GetConversation(context.Background(), &store.FindConversation{ID: &missing})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConversationRecencyOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old, err := s.CreateConversation(ctx, &store.Conversation{Title: "old", CreatedTs: 100, UpdatedTs: 100})
	require.NoError(t, err)
	fresh, err := s.CreateConversation(ctx, &store.Conversation{Title: "fresh", CreatedTs: 300, UpdatedTs: 300})
	require.NoError(t, err)
	// Same updated_ts as "old": the tie breaks on id descending.
	tied, err := s.CreateConversation(ctx, &store.Conversation{Title: "tied", CreatedTs: 100, UpdatedTs: 100})
	require.NoError(t, err)

	recent, err := s.ListRecentConversations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, fresh.ID, recent[0].ID)
	assert.Equal(t, tied.ID, recent[1].ID)
	assert.Equal(t, old.ID, recent[2].ID)

	limited, err := s.ListRecentConversations(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestConversationTitleLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	createConversation(t, s, "Trip Planning")
	createConversation(t, s, "Recipe ideas")

	byTitle, err := s.GetConversationByTitle(ctx, "Trip Planning")
	require.NoError(t, err)
	require.NotNil(t, byTitle)
	assert.Equal(t, "Trip Planning", byTitle.Title)

	noMatch, err := s.GetConversationByTitle(ctx, "Trip")
	require.NoError(t, err)
	assert.Nil(t, noMatch, "exact match must not match prefixes")

	found, err := s.SearchConversationsByTitle(ctx, "rip")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Trip Planning", found[0].Title)

	none, err := s.SearchConversationsByTitle(ctx, "xyzzy")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListConversationsPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := int64(1); i <= 5; i++ {
		_, err := s.CreateConversation(ctx, &store.Conversation{Title: "c", CreatedTs: i, UpdatedTs: i})
		require.NoError(t, err)
	}

	limit, offset := 2, 2
	page, err := s.ListConversations(ctx, &store.FindConversation{Limit: &limit, Offset: &offset})
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Ordered updated_ts DESC: offset 2 skips ts 5 and 4.
	assert.Equal(t, int64(3), page[0].UpdatedTs)
	assert.Equal(t, int64(2), page[1].UpdatedTs)
}

func TestUpdateConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.CreateConversation(ctx, &store.Conversation{Title: "before", CreatedTs: 100, UpdatedTs: 100})
	require.NoError(t, err)

	newTitle := "after"
	updated, err := s.UpdateConversation(ctx, &store.UpdateConversation{ID: created.ID, Title: &newTitle})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "after", updated.Title)
	assert.Greater(t, updated.UpdatedTs, int64(100), "update must refresh updated_ts")
	assert.Equal(t, int64(100), updated.CreatedTs)

	got, err := s.GetConversation(ctx, &store.FindConversation{ID: &created.ID})
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
}

func TestUpdateConversationNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	title := "x"
	updated, err := s.UpdateConversation(ctx, &store.UpdateConversation{ID: 9999, Title: &title})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestDeleteConversationReportsExistence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := createConversation(t, s, "doomed")

	deleted, err := s.DeleteConversation(ctx, &store.DeleteConversation{ID: created.ID})
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteConversation(ctx, &store.DeleteConversation{ID: created.ID})
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCreateMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "chat")
	summary := "greeting"
	created, err := s.CreateMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        "hello",
		NodeSummary:    &summary,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.NotZero(t, created.CreatedTs)

	got, err := s.GetMessage(ctx, &store.FindMessage{ID: &created.ID})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, conv.ID, got.ConversationID)
	assert.Nil(t, got.ParentID)
	assert.Equal(t, store.RoleUser, got.Role)
	assert.Equal(t, "hello", got.Content)
	require.NotNil(t, got.NodeSummary)
	assert.Equal(t, "greeting", *got.NodeSummary)
	assert.Equal(t, created.CreatedTs, got.CreatedTs)
}

func TestCreateMessageRejectsInvalidRole(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "chat")
	createMessage(t, s, conv.ID, nil, store.RoleUser, "hi")

	_, err := s.CreateMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		Role:           store.Role("assistant"),
		Content:        "nope",
	})
	require.Error(t, err)

	// The failed write must leave no partial record behind.
	messages, err := s.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestCreateMessageRejectsUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateMessage(context.Background(), &store.Message{
		ConversationID: 9999,
		Role:           store.RoleUser,
		Content:        "orphan",
	})
	require.Error(t, err)
}

func TestCreateMessageRejectsCrossConversationParent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	convA := createConversation(t, s, "a")
	convB := createConversation(t, s, "b")
	rootA := createMessage(t, s, convA.ID, nil, store.RoleUser, "root in a")

	_, err := s.CreateMessage(ctx, &store.Message{
		ConversationID: convB.ID,
		ParentID:       &rootA.ID,
		Role:           store.RoleModel,
		Content:        "wrong tree",
	})
	require.Error(t, err)

	messages, err := s.ListMessages(ctx, &store.FindMessage{ConversationID: &convB.ID})
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestMessageTreeQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "Trip Planning")
	other := createConversation(t, s, "Other Topic")

	root := createMessage(t, s, conv.ID, nil, store.RoleUser, "Where should I go?")
	paris := createMessage(t, s, conv.ID, &root.ID, store.RoleModel, "Paris")
	tokyo := createMessage(t, s, conv.ID, &root.ID, store.RoleModel, "Tokyo")
	parisFollowup := createMessage(t, s, conv.ID, &paris.ID, store.RoleUser, "What about museums?")
	otherRoot := createMessage(t, s, other.ID, nil, store.RoleUser, "unrelated")

	t.Run("list by conversation", func(t *testing.T) {
		messages, err := s.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
		require.NoError(t, err)
		require.Len(t, messages, 4)
		assert.Equal(t, root.ID, messages[0].ID)
	})

	t.Run("roots exclude other conversations", func(t *testing.T) {
		roots, err := s.ListRootMessages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, roots, 1)
		assert.Equal(t, root.ID, roots[0].ID)

		otherRoots, err := s.ListRootMessages(ctx, other.ID)
		require.NoError(t, err)
		require.Len(t, otherRoots, 1)
		assert.Equal(t, otherRoot.ID, otherRoots[0].ID)
	})

	t.Run("children are direct only, in creation order", func(t *testing.T) {
		children, err := s.ListChildMessages(ctx, root.ID)
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, paris.ID, children[0].ID)
		assert.Equal(t, tokyo.ID, children[1].ID)
	})

	t.Run("filter by role", func(t *testing.T) {
		models, err := s.ListMessagesByRole(ctx, conv.ID, store.RoleModel)
		require.NoError(t, err)
		require.Len(t, models, 2)
		for _, m := range models {
			assert.Equal(t, store.RoleModel, m.Role)
		}
	})

	t.Run("thread from branch leaf", func(t *testing.T) {
		thread, err := s.GetThread(ctx, paris.ID)
		require.NoError(t, err)
		require.Len(t, thread, 2)
		assert.Equal(t, root.ID, thread[0].ID)
		assert.Equal(t, paris.ID, thread[1].ID)
	})

	t.Run("thread from grandchild", func(t *testing.T) {
		thread, err := s.GetThread(ctx, parisFollowup.ID)
		require.NoError(t, err)
		require.Len(t, thread, 3)
		assert.Equal(t, root.ID, thread[0].ID)
		assert.Equal(t, paris.ID, thread[1].ID)
		assert.Equal(t, parisFollowup.ID, thread[2].ID)
	})

	t.Run("thread of missing message is empty", func(t *testing.T) {
		thread, err := s.GetThread(ctx, 9999)
		require.NoError(t, err)
		assert.Empty(t, thread)
	})
}

func TestUpdateMessage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "chat")
	created := createMessage(t, s, conv.ID, nil, store.RoleUser, "draft")

	content := "final"
	summary := "revised"
	updated, err := s.UpdateMessage(ctx, &store.UpdateMessage{ID: created.ID, Content: &content, NodeSummary: &summary})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "final", updated.Content)
	require.NotNil(t, updated.NodeSummary)
	assert.Equal(t, "revised", *updated.NodeSummary)
	assert.Equal(t, store.RoleUser, updated.Role)
}

func TestUpdateMessageNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	content := "x"
	updated, err := s.UpdateMessage(ctx, &store.UpdateMessage{ID: 9999, Content: &content})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestDeleteConversationCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "doomed")
	root := createMessage(t, s, conv.ID, nil, store.RoleUser, "root")
	child := createMessage(t, s, conv.ID, &root.ID, store.RoleModel, "child")
	attachment, err := s.CreateAttachment(ctx, &store.Attachment{
		MessageID:   child.ID,
		Filename:    "notes.txt",
		ExternalRef: "ref://bucket/notes.txt",
	})
	require.NoError(t, err)

	deleted, err := s.DeleteConversation(ctx, &store.DeleteConversation{ID: conv.ID})
	require.NoError(t, err)
	assert.True(t, deleted)

	for _, id := range []int32{root.ID, child.ID} {
		got, err := s.GetMessage(ctx, &store.FindMessage{ID: &id})
		require.NoError(t, err)
		assert.Nil(t, got, "message %d should be gone", id)
	}

	gotAttachment, err := s.GetAttachment(ctx, &store.FindAttachment{ID: &attachment.ID})
	require.NoError(t, err)
	assert.Nil(t, gotAttachment)
}

func TestDeleteMessageCascadesToDescendants(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "tree")
	root := createMessage(t, s, conv.ID, nil, store.RoleUser, "root")
	child := createMessage(t, s, conv.ID, &root.ID, store.RoleModel, "child")
	grandchild := createMessage(t, s, conv.ID, &child.ID, store.RoleUser, "grandchild")
	attachment, err := s.CreateAttachment(ctx, &store.Attachment{
		MessageID:   grandchild.ID,
		Filename:    "deep.txt",
		ExternalRef: "ref://bucket/deep.txt",
	})
	require.NoError(t, err)

	deleted, err := s.DeleteMessage(ctx, &store.DeleteMessage{ID: child.ID})
	require.NoError(t, err)
	assert.True(t, deleted)

	gotRoot, err := s.GetMessage(ctx, &store.FindMessage{ID: &root.ID})
	require.NoError(t, err)
	assert.NotNil(t, gotRoot, "parent survives deleting a branch")

	for _, id := range []int32{child.ID, grandchild.ID} {
		got, err := s.GetMessage(ctx, &store.FindMessage{ID: &id})
		require.NoError(t, err)
		assert.Nil(t, got)
	}

	gotAttachment, err := s.GetAttachment(ctx, &store.FindAttachment{ID: &attachment.ID})
	require.NoError(t, err)
	assert.Nil(t, gotAttachment)
}

func TestDeleteMessageNotFound(t *testing.T) {
	s := newTestStore(t)

	deleted, err := s.DeleteMessage(context.Background(), &store.DeleteMessage{ID: 9999})
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestAttachmentLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "Trip Planning")
	other := createConversation(t, s, "Other")
	message := createMessage(t, s, conv.ID, nil, store.RoleUser, "see attached")
	otherMessage := createMessage(t, s, other.ID, nil, store.RoleUser, "unrelated")

	itinerary, err := s.CreateAttachment(ctx, &store.Attachment{
		MessageID:   message.ID,
		Filename:    "itinerary.pdf",
		ExternalRef: "ref://bucket/itinerary.pdf",
	})
	require.NoError(t, err)
	assert.NotZero(t, itinerary.ID)
	assert.NotZero(t, itinerary.CreatedTs)

	_, err = s.CreateAttachment(ctx, &store.Attachment{
		MessageID:   otherMessage.ID,
		Filename:    "noise.txt",
		ExternalRef: "ref://bucket/noise.txt",
	})
	require.NoError(t, err)

	t.Run("by message", func(t *testing.T) {
		list, err := s.ListAttachments(ctx, &store.FindAttachment{MessageID: &message.ID})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, itinerary.ID, list[0].ID)
	})

	t.Run("by message and filename", func(t *testing.T) {
		got, err := s.GetAttachmentByFilename(ctx, message.ID, "itinerary.pdf")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, itinerary.ID, got.ID)

		missing, err := s.GetAttachmentByFilename(ctx, message.ID, "other.pdf")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("by external reference", func(t *testing.T) {
		got, err := s.GetAttachmentByExternalRef(ctx, "ref://bucket/itinerary.pdf")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, itinerary.ID, got.ID)
	})

	t.Run("by conversation joins through messages", func(t *testing.T) {
		list, err := s.ListAttachmentsByConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, itinerary.ID, list[0].ID)
	})
}

func TestAttachmentListingIsUnbounded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "bulk")
	message := createMessage(t, s, conv.ID, nil, store.RoleUser, "carrier")

	const total = 120
	for i := 0; i < total; i++ {
		_, err := s.CreateAttachment(ctx, &store.Attachment{
			MessageID:   message.ID,
			Filename:    fmt.Sprintf("file-%03d.txt", i),
			ExternalRef: fmt.Sprintf("ref://bucket/file-%03d.txt", i),
		})
		require.NoError(t, err)
	}

	find := &store.FindAttachment{MessageID: &message.ID}
	byMessage, err := s.ListAttachments(ctx, find)
	require.NoError(t, err)
	assert.Len(t, byMessage, total)
	assert.Nil(t, find.Limit, "listing must not write a window into the caller's find")

	byConversation, err := s.ListAttachmentsByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, byConversation, total)

	loaded, err := s.GetMessageWithAttachments(ctx, message.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Attachments, total)
}

func TestUpdateMessageWithoutFieldsReturnsCurrentRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "chat")
	created := createMessage(t, s, conv.ID, nil, store.RoleUser, "unchanged")

	updated, err := s.UpdateMessage(ctx, &store.UpdateMessage{ID: created.ID})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "unchanged", updated.Content)

	missing, err := s.UpdateMessage(ctx, &store.UpdateMessage{ID: 9999})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateAttachmentWithoutFieldsReturnsCurrentRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "chat")
	message := createMessage(t, s, conv.ID, nil, store.RoleUser, "carrier")
	created, err := s.CreateAttachment(ctx, &store.Attachment{
		MessageID:   message.ID,
		Filename:    "keep.txt",
		ExternalRef: "ref://bucket/keep.txt",
	})
	require.NoError(t, err)

	updated, err := s.UpdateAttachment(ctx, &store.UpdateAttachment{ID: created.ID})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "keep.txt", updated.Filename)

	missing, err := s.UpdateAttachment(ctx, &store.UpdateAttachment{ID: 9999})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAttachmentRequiresMessage(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateAttachment(context.Background(), &store.Attachment{
		MessageID:   9999,
		Filename:    "orphan.txt",
		ExternalRef: "ref://bucket/orphan.txt",
	})
	require.Error(t, err)
}

func TestGetConversationWithMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "loaded")
	first := createMessage(t, s, conv.ID, nil, store.RoleUser, "first")
	second := createMessage(t, s, conv.ID, &first.ID, store.RoleModel, "second")

	got, err := s.GetConversationWithMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, first.ID, got.Messages[0].ID)
	assert.Equal(t, second.ID, got.Messages[1].ID)

	missing, err := s.GetConversationWithMessages(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetMessageWithAttachments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "loaded")
	message := createMessage(t, s, conv.ID, nil, store.RoleUser, "with files")
	_, err := s.CreateAttachment(ctx, &store.Attachment{
		MessageID:   message.ID,
		Filename:    "a.txt",
		ExternalRef: "ref://bucket/a.txt",
	})
	require.NoError(t, err)

	got, err := s.GetMessageWithAttachments(ctx, message.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "a.txt", got.Attachments[0].Filename)
}

func TestMessageCountJoin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := createConversation(t, s, "counted")
	root := createMessage(t, s, conv.ID, nil, store.RoleUser, "one")
	createMessage(t, s, conv.ID, &root.ID, store.RoleModel, "two")

	list, err := s.ListRecentConversations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int32(2), list[0].MessageCount)
}
