package startup

import (
	"context"
	"time"

	"github.com/supportdesk/internal/storage"
	"github.com/supportdesk/internal/storage/memory"
	redisstorage "github.com/supportdesk/internal/storage/redis"
)

// ConnectStore возвращает Redis-хранилище с повторами подключения,
// либо хранилище в памяти, если REDIS_URL не задан.
func ConnectStore(redisURL string, maxWait time.Duration) (storage.Store, error) {
	if redisURL == "" {
		return memory.New(), nil
	}
	var client *redisstorage.Client
	err := withRetry("redis connect", maxWait, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(ctx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
