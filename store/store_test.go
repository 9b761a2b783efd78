package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/chatarbor/arbor/internal/profile"
)

// mockDriver is a map-backed Driver for exercising facade logic without a
// database. It only models what the facade itself depends on; constraint
// enforcement lives in the real backends and is tested there.
type mockDriver struct {
	mu            sync.Mutex
	nextID        int32
	conversations map[int32]*Conversation
	messages      map[int32]*Message
	attachments   map[int32]*Attachment

	listConversationCalls int
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		conversations: map[int32]*Conversation{},
		messages:      map[int32]*Message{},
		attachments:   map[int32]*Attachment{},
	}
}

func newMockStore(driver Driver) *Store {
	return New(driver, &profile.Profile{
		Mode:                  "dev",
		Driver:                "sqlite",
		ConversationCacheTTL:  time.Minute,
		ConversationCacheSize: 16,
	})
}

func (d *mockDriver) GetDB() *sql.DB { return nil }
func (d *mockDriver) Close() error   { return nil }

func (d *mockDriver) IsInitialized(ctx context.Context) (bool, error) { return true, nil }
func (d *mockDriver) Migrate(ctx context.Context) error               { return nil }

func (d *mockDriver) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	created := *create
	created.ID = d.nextID
	d.conversations[created.ID] = &created
	copied := created
	return &copied, nil
}

func (d *mockDriver) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.listConversationCalls++

	list := []*Conversation{}
	for _, c := range d.conversations {
		if find.ID != nil && c.ID != *find.ID {
			continue
		}
		if find.UID != nil && c.UID != *find.UID {
			continue
		}
		if find.Title != nil && c.Title != *find.Title {
			continue
		}
		copied := *c
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (d *mockDriver) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.conversations[update.ID]
	if !ok {
		return nil, nil
	}
	if update.Title != nil {
		c.Title = *update.Title
	}
	if update.UpdatedTs != nil {
		c.UpdatedTs = *update.UpdatedTs
	}
	copied := *c
	return &copied, nil
}

func (d *mockDriver) DeleteConversation(ctx context.Context, del *DeleteConversation) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conversations[del.ID]; !ok {
		return false, nil
	}
	for id, m := range d.messages {
		if m.ConversationID == del.ID {
			dropMessageLocked(d, id)
		}
	}
	delete(d.conversations, del.ID)
	return true, nil
}

func dropMessageLocked(d *mockDriver, id int32) {
	for attachmentID, a := range d.attachments {
		if a.MessageID == id {
			delete(d.attachments, attachmentID)
		}
	}
	delete(d.messages, id)
}

func (d *mockDriver) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	created := *create
	created.ID = d.nextID
	d.messages[created.ID] = &created
	copied := created
	return &copied, nil
}

func (d *mockDriver) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := []*Message{}
	for _, m := range d.messages {
		if find.ID != nil && m.ID != *find.ID {
			continue
		}
		if find.ConversationID != nil && m.ConversationID != *find.ConversationID {
			continue
		}
		if find.ParentID != nil && (m.ParentID == nil || *m.ParentID != *find.ParentID) {
			continue
		}
		if find.RootsOnly && m.ParentID != nil {
			continue
		}
		if find.Role != nil && m.Role != *find.Role {
			continue
		}
		copied := *m
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (d *mockDriver) UpdateMessage(ctx context.Context, update *UpdateMessage) (*Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.messages[update.ID]
	if !ok {
		return nil, nil
	}
	if update.Content != nil {
		m.Content = *update.Content
	}
	if update.NodeSummary != nil {
		m.NodeSummary = update.NodeSummary
	}
	copied := *m
	return &copied, nil
}

func (d *mockDriver) DeleteMessage(ctx context.Context, del *DeleteMessage) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.messages[del.ID]; !ok {
		return false, nil
	}
	dropMessageLocked(d, del.ID)
	return true, nil
}

func (d *mockDriver) CreateAttachment(ctx context.Context, create *Attachment) (*Attachment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	created := *create
	created.ID = d.nextID
	d.attachments[created.ID] = &created
	copied := created
	return &copied, nil
}

func (d *mockDriver) ListAttachments(ctx context.Context, find *FindAttachment) ([]*Attachment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := []*Attachment{}
	for _, a := range d.attachments {
		if find.ID != nil && a.ID != *find.ID {
			continue
		}
		if find.MessageID != nil && a.MessageID != *find.MessageID {
			continue
		}
		if find.Filename != nil && a.Filename != *find.Filename {
			continue
		}
		if find.ExternalRef != nil && a.ExternalRef != *find.ExternalRef {
			continue
		}
		copied := *a
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (d *mockDriver) UpdateAttachment(ctx context.Context, update *UpdateAttachment) (*Attachment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.attachments[update.ID]
	if !ok {
		return nil, nil
	}
	if update.Filename != nil {
		a.Filename = *update.Filename
	}
	if update.ExternalRef != nil {
		a.ExternalRef = *update.ExternalRef
	}
	copied := *a
	return &copied, nil
}

func (d *mockDriver) DeleteAttachment(ctx context.Context, del *DeleteAttachment) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.attachments[del.ID]; !ok {
		return false, nil
	}
	delete(d.attachments, del.ID)
	return true, nil
}
