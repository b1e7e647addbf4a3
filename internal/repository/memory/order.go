package memory

import (
	"context"
	"sync"

	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]model.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]model.Order)}
}

// Put нужен только для наполнения: заказы принадлежат магазину.
func (r *OrderRepository) Put(o model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}
