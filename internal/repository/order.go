package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
)

// OrderRepository только читает заказы; ими владеет магазин.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	defer logger.DeferLogDuration("order.GetByID", time.Now())()
	o := &model.Order{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, product_name, total_price, product_image, status FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.UserID, &o.ProductName, &o.TotalPrice, &o.ProductImage, &o.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("orderRepo.GetByID: %w", err)
	}
	return o, nil
}
