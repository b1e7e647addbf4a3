package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/supportdesk/internal/storage/memory"
)

func TestCheckRateLimitWindow(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	for i := 0; i < 3; i++ {
		ok, err := c.CheckRateLimit(ctx, "ip:1", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("call %d: allowed=%v err=%v", i, ok, err)
		}
	}
	ok, _ := c.CheckRateLimit(ctx, "ip:1", 3, time.Minute)
	if ok {
		t.Fatal("4th call within window must be rejected")
	}
	ok, _ = c.CheckRateLimit(ctx, "ip:2", 3, time.Minute)
	if !ok {
		t.Fatal("keys must be counted separately")
	}
}

func TestRevokeExpires(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	if err := c.Revoke(ctx, "jti-1", 20*time.Millisecond); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if revoked, _ := c.IsRevoked(ctx, "jti-1"); !revoked {
		t.Fatal("token must be revoked")
	}
	time.Sleep(30 * time.Millisecond)
	if revoked, _ := c.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatal("revocation must expire with the token")
	}
	if revoked, _ := c.IsRevoked(ctx, "unknown"); revoked {
		t.Fatal("unknown token is not revoked")
	}
}

func TestExpiredEntriesAreSwept(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	for _, key := range []string{"ip:1", "ip:2", "u:alice"} {
		if _, err := c.CheckRateLimit(ctx, key, 5, time.Second); err != nil {
			t.Fatalf("CheckRateLimit %s: %v", key, err)
		}
	}
	if err := c.Revoke(ctx, "jti-old", time.Second); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if limits, revoked := c.Tracked(); limits != 3 || revoked != 1 {
		t.Fatalf("tracked = %d limits, %d revoked", limits, revoked)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.CheckRateLimit(ctx, "ip:3", 5, time.Second); err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if limits, revoked := c.Tracked(); limits != 1 || revoked != 0 {
		t.Fatalf("after sweep: %d limits, %d revoked, want 1 and 0", limits, revoked)
	}
}
