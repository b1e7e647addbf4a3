package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository"
)

type GroupRepository struct {
	mu     sync.Mutex
	groups map[string]*model.GroupConversation
}

func NewGroupRepository() *GroupRepository {
	return &GroupRepository{groups: make(map[string]*model.GroupConversation)}
}

func (r *GroupRepository) Create(ctx context.Context, g *model.GroupConversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.UpdatedAt = g.CreatedAt
	r.groups[g.ID] = cloneGroup(g)
	return nil
}

func (r *GroupRepository) get(id string) (*model.GroupConversation, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return g, nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.GroupConversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return cloneGroup(g), nil
}

func (r *GroupRepository) ListByMember(ctx context.Context, userID string) ([]model.GroupConversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.GroupConversation, 0, 4)
	for _, g := range r.groups {
		if g.IsMember(userID) {
			out = append(out, *cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *GroupRepository) AddMember(ctx context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, err := r.get(id)
	if err != nil {
		return false, err
	}
	if g.IsMember(userID) {
		return false, nil
	}
	g.Members = append(g.Members, userID)
	g.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, err := r.get(id)
	if err != nil {
		return false, err
	}
	if !slices.Contains(g.Members, userID) {
		return false, nil
	}
	g.Members = removeFromSet(g.Members, userID)
	g.MutedMembers = removeFromSet(g.MutedMembers, userID)
	g.TypingUsers = removeFromSet(g.TypingUsers, userID)
	delete(g.Unread, userID)
	g.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *GroupRepository) RecordMessage(ctx context.Context, id, messageID string, receivers []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, err := r.get(id)
	if err != nil {
		return err
	}
	g.MessageIDs = append(g.MessageIDs, messageID)
	g.LastMessageID = model.Slot(messageID)
	g.Unread = recomputeUnread(g.Unread, receivers)
	g.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *GroupRepository) ClearUnread(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, err := r.get(id)
	if err != nil {
		return err
	}
	delete(g.Unread, userID)
	return nil
}

func (r *GroupRepository) SetMuted(ctx context.Context, id, userID string, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, err := r.get(id)
	if err != nil {
		return err
	}
	if muted {
		g.MutedMembers = addToSet(g.MutedMembers, userID)
	} else {
		g.MutedMembers = removeFromSet(g.MutedMembers, userID)
	}
	return nil
}

func (r *GroupRepository) SetTyping(ctx context.Context, id, userID string, typing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, err := r.get(id)
	if err != nil {
		return err
	}
	if typing {
		g.TypingUsers = addToSet(g.TypingUsers, userID)
	} else {
		g.TypingUsers = removeFromSet(g.TypingUsers, userID)
	}
	return nil
}

func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.groups, id)
	return nil
}
