package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository"
)

type PinRepository struct {
	mu       sync.Mutex
	pins     map[string]map[string]model.PinnedMessage
	messages *MessageRepository
}

// NewPinRepository: messages нужен, чтобы GetPinned возвращал закреплённые сообщения целиком.
func NewPinRepository(messages *MessageRepository) *PinRepository {
	return &PinRepository{pins: make(map[string]map[string]model.PinnedMessage), messages: messages}
}

func (r *PinRepository) Pin(ctx context.Context, threadID, messageID, pinnedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byMsg, ok := r.pins[threadID]
	if !ok {
		byMsg = make(map[string]model.PinnedMessage)
		r.pins[threadID] = byMsg
	}
	byMsg[messageID] = model.PinnedMessage{
		ThreadID:  threadID,
		MessageID: messageID,
		PinnedBy:  pinnedBy,
		PinnedAt:  time.Now().UTC(),
	}
	return nil
}

func (r *PinRepository) Unpin(ctx context.Context, threadID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byMsg, ok := r.pins[threadID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, ok := byMsg[messageID]; !ok {
		return repository.ErrNotFound
	}
	delete(byMsg, messageID)
	return nil
}

func (r *PinRepository) GetPinned(ctx context.Context, threadID string) ([]model.PinnedMessage, error) {
	r.mu.Lock()
	out := make([]model.PinnedMessage, 0, len(r.pins[threadID]))
	for _, p := range r.pins[threadID] {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PinnedAt.After(out[j].PinnedAt) })
	if r.messages != nil {
		for i := range out {
			if m, err := r.messages.GetByID(ctx, out[i].MessageID); err == nil {
				out[i].Message = m
			}
		}
	}
	return out, nil
}
