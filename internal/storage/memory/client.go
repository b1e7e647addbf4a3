package memory

import (
	"context"
	"sync"
	"time"
)

// sweepInterval: как часто вычищаются истёкшие окна и отзывы.
const sweepInterval = time.Minute

type window struct {
	count int
	reset time.Time
}

type Client struct {
	mu      sync.Mutex
	limits  map[string]window
	revoked map[string]time.Time
	now     func() time.Time

	// nextSweep: не раньше этого момента снова проходим по картам.
	nextSweep time.Time
}

func New() *Client {
	return &Client{
		limits:  make(map[string]window),
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) CheckRateLimit(ctx context.Context, key string, max int, win time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.sweep(now)
	w, ok := c.limits[key]
	if !ok || !now.Before(w.reset) {
		w = window{reset: now.Add(win)}
	}
	w.count++
	c.limits[key] = w
	return w.count <= max, nil
}

// sweep удаляет ключи с прошедшим окном; вызывается под mu.
func (c *Client) sweep(now time.Time) {
	if now.Before(c.nextSweep) {
		return
	}
	c.nextSweep = now.Add(sweepInterval)
	for k, w := range c.limits {
		if !now.Before(w.reset) {
			delete(c.limits, k)
		}
	}
	for id, exp := range c.revoked {
		if !now.Before(exp) {
			delete(c.revoked, id)
		}
	}
}

func (c *Client) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.sweep(now)
	c.revoked[tokenID] = now.Add(ttl)
	return nil
}

func (c *Client) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !c.now().Before(exp) {
		delete(c.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
