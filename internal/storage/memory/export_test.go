package memory

import "time"

func (c *Client) SetClock(now func() time.Time) { c.now = now }

func (c *Client) Tracked() (limits, revoked int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.limits), len(c.revoked)
}
