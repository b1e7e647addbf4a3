package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository"
)

type ConversationRepository struct {
	mu    sync.Mutex
	convs map[string]*model.Conversation
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{convs: make(map[string]*model.Conversation)}
}

func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = model.ConversationActive
	}
	r.convs[c.ID] = cloneConversation(c)
	return nil
}

func (r *ConversationRepository) get(id string) (*model.Conversation, error) {
	c, ok := r.convs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return cloneConversation(c), nil
}

func (r *ConversationRepository) list(keep func(*model.Conversation) bool) []model.Conversation {
	out := make([]model.Conversation, 0, 8)
	for _, c := range r.convs {
		if c.Status == model.ConversationDeleted || !keep(c) {
			continue
		}
		out = append(out, *cloneConversation(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(c *model.Conversation) bool { return c.HasParticipant(userID) }), nil
}

func (r *ConversationRepository) ListAll(ctx context.Context) ([]model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(*model.Conversation) bool { return true }), nil
}

func (r *ConversationRepository) ClaimSlot(ctx context.Context, id string, slot int, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return false, err
	}
	if slot < 0 || slot >= len(c.Recipients) || c.Recipients[slot] != nil {
		return false, nil
	}
	c.Recipients[slot] = model.Slot(userID)
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *ConversationRepository) AppendRecipient(ctx context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return false, err
	}
	if len(c.Recipients) >= model.MaxRecipients || c.HasParticipant(userID) {
		return false, nil
	}
	c.Recipients = append(c.Recipients, model.Slot(userID))
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *ConversationRepository) ReleaseSlot(ctx context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return false, err
	}
	released := false
	for i, s := range c.Recipients {
		if s != nil && *s == userID {
			c.Recipients[i] = nil
			released = true
		}
	}
	if released {
		delete(c.Unread, userID)
		c.TypingUsers = removeFromSet(c.TypingUsers, userID)
		c.UpdatedAt = time.Now().UTC()
	}
	return released, nil
}

func (r *ConversationRepository) RecordMessage(ctx context.Context, id, messageID string, receivers []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return err
	}
	c.MessageIDs = append(c.MessageIDs, messageID)
	c.LastMessageID = model.Slot(messageID)
	c.Unread = recomputeUnread(c.Unread, receivers)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ConversationRepository) ClearUnread(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return err
	}
	delete(c.Unread, userID)
	return nil
}

func (r *ConversationRepository) SetMuted(ctx context.Context, id, userID string, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return err
	}
	if muted {
		c.MutedUsers = addToSet(c.MutedUsers, userID)
	} else {
		c.MutedUsers = removeFromSet(c.MutedUsers, userID)
	}
	return nil
}

func (r *ConversationRepository) SetTyping(ctx context.Context, id, userID string, typing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return err
	}
	if typing {
		c.TypingUsers = addToSet(c.TypingUsers, userID)
	} else {
		c.TypingUsers = removeFromSet(c.TypingUsers, userID)
	}
	return nil
}

func (r *ConversationRepository) SetStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return err
	}
	if c.Status != status {
		c.Status = status
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}
