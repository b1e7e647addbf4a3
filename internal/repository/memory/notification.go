package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/supportdesk/internal/model"
)

type NotificationRepository struct {
	mu    sync.Mutex
	items []*model.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{}
}

func (r *NotificationRepository) CreateMany(ctx context.Context, ns []*model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, n := range ns {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		r.items = append(r.items, cloneNotification(n))
	}
	return nil
}

func addressedTo(n *model.Notification, userID string) bool {
	return slices.Contains(n.NotifiedTo, userID)
}

// ListByRecipient возвращает входящие пользователя, новые первыми.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, userID string) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Notification, 0, 8)
	for i := len(r.items) - 1; i >= 0; i-- {
		if addressedTo(r.items[i], userID) {
			out = append(out, *cloneNotification(r.items[i]))
		}
	}
	return out, nil
}

func (r *NotificationRepository) find(id, userID string) *model.Notification {
	for _, n := range r.items {
		if n.ID == id && addressedTo(n, userID) {
			return n
		}
	}
	return nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.find(id, userID)
	if n == nil {
		return false, nil
	}
	if !n.IsRead {
		t := at
		n.IsRead = true
		n.ReadAt = &t
	}
	return true, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cnt int64
	for _, n := range r.items {
		if addressedTo(n, userID) && !n.IsRead {
			t := at
			n.IsRead = true
			n.ReadAt = &t
			cnt++
		}
	}
	return cnt, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.items {
		if n.ID == id && addressedTo(n, userID) {
			r.items = slices.Delete(r.items, i, i+1)
			return true, nil
		}
	}
	return false, nil
}

func (r *NotificationRepository) DeleteAll(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.items)
	r.items = slices.DeleteFunc(r.items, func(n *model.Notification) bool { return addressedTo(n, userID) })
	return int64(before - len(r.items)), nil
}

func (r *NotificationRepository) ResolvePending(ctx context.Context, conversationID, acceptedBy string) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Notification, 0, 4)
	for _, n := range r.items {
		if !n.Type.Claimable() || n.IsAccepted != nil || n.ConversationID == nil || *n.ConversationID != conversationID {
			continue
		}
		accepted := addressedTo(n, acceptedBy)
		n.IsAccepted = &accepted
		out = append(out, *cloneNotification(n))
	}
	return out, nil
}

func (r *NotificationRepository) Decline(ctx context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.find(id, userID)
	if n == nil || n.IsAccepted != nil {
		return false, nil
	}
	declined := false
	n.IsAccepted = &declined
	return true, nil
}
