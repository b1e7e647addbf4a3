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

type CallRepository struct {
	mu    sync.Mutex
	calls map[string]*model.Call
}

func NewCallRepository() *CallRepository {
	return &CallRepository{calls: make(map[string]*model.Call)}
}

func (r *CallRepository) Create(ctx context.Context, c *model.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[c.ID] = cloneCall(c)
	return nil
}

func (r *CallRepository) GetByID(ctx context.Context, id string) (*model.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneCall(c), nil
}

// Finish меняет статус только у активного звонка.
func (r *CallRepository) Finish(ctx context.Context, id string, status model.CallStatus, reason model.EndReason, endedAt time.Time, missedBy []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if c.Status != model.CallActive {
		return false, nil
	}
	t := endedAt
	rs := reason
	c.Status = status
	c.EndedAt = &t
	c.EndReason = &rs
	c.DurationSeconds = int64(endedAt.Sub(c.StartedAt) / time.Second)
	if c.DurationSeconds < 0 {
		c.DurationSeconds = 0
	}
	if len(missedBy) > 0 {
		c.MissedBy = slices.Clone(missedBy)
	}
	return true, nil
}

func (r *CallRepository) AddParticipant(ctx context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if c.Status != model.CallActive || slices.Contains(c.Participants, userID) {
		return false, nil
	}
	c.Participants = append(c.Participants, userID)
	return true, nil
}

func (r *CallRepository) RemoveParticipant(ctx context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if c.Status != model.CallActive || !slices.Contains(c.Participants, userID) {
		return false, nil
	}
	c.Participants = removeFromSet(c.Participants, userID)
	return true, nil
}

func (r *CallRepository) ListActive(ctx context.Context, userID string) ([]model.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Call, 0, 2)
	for _, c := range r.calls {
		if c.Status == model.CallActive && c.HasParticipant(userID) {
			out = append(out, *cloneCall(c))
		}
	}
	sortCalls(out)
	return out, nil
}

func (r *CallRepository) ListHistory(ctx context.Context, userID string, limit int) ([]model.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Call, 0, 8)
	for _, c := range r.calls {
		if c.HasParticipant(userID) || slices.Contains(c.MissedBy, userID) {
			out = append(out, *cloneCall(c))
		}
	}
	sortCalls(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortCalls(cs []model.Call) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].StartedAt.Equal(cs[j].StartedAt) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].StartedAt.After(cs[j].StartedAt)
	})
}
