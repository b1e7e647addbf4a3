package storage

import (
	"context"
	"time"
)

// Store: короткоживущие ключи для лимитов запросов и отозванных токенов.
// Реализации: redis.Client, memory.Client (без Redis, для -dev и тестов).
type Store interface {
	// CheckRateLimit считает обращение по key; false, если за окно window их больше max.
	CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (allowed bool, err error)
	// Revoke помечает токен отозванным на ttl (до его естественного истечения).
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Close() error
}
