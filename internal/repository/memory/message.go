package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository"
)

type MessageRepository struct {
	mu    sync.Mutex
	msgs  map[string]*model.Message
	order []string
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{msgs: make(map[string]*model.Message)}
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, exists := r.msgs[m.ID]; !exists {
		r.order = append(r.order, m.ID)
	}
	r.msgs[m.ID] = cloneMessage(m)
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneMessage(m), nil
}

// ListByThread возвращает сообщения диалога или группы в порядке отправки.
func (r *MessageRepository) ListByThread(ctx context.Context, threadID string) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Message, 0, 16)
	for _, id := range r.order {
		m := r.msgs[id]
		if m.ThreadID() == threadID {
			out = append(out, *cloneMessage(m))
		}
	}
	return out, nil
}

func (r *MessageRepository) MarkThreadRead(ctx context.Context, threadID, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range r.order {
		m := r.msgs[id]
		if m.ThreadID() != threadID || m.IsDeleted || !slices.Contains(m.ReceiverIDs, userID) || slices.Contains(m.ReadBy, userID) {
			continue
		}
		markRead(m, userID, at)
		n++
	}
	return n, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !m.IsDeleted && !slices.Contains(m.ReadBy, userID) {
		markRead(m, userID, at)
	}
	return cloneMessage(m), nil
}

func markRead(m *model.Message, userID string, at time.Time) {
	t := at
	m.IsRead = true
	m.ReadAt = &t
	m.ReadBy = addToSet(m.ReadBy, userID)
}

// SoftDelete: false, если сообщение уже удалено.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if m.IsDeleted {
		return false, nil
	}
	m.IsDeleted = true
	m.Text = model.DeletedMessageText
	m.Attachments = []string{}
	return true, nil
}
