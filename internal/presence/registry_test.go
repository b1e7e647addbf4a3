package presence_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/presence"
)

type fakeConn struct {
	handle, user string
	mu           sync.Mutex
	events       []model.Event
	closed       bool
}

func (c *fakeConn) Handle() string { return c.handle }
func (c *fakeConn) UserID() string { return c.user }
func (c *fakeConn) Push(ev model.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return true
}
func (c *fakeConn) Close() { c.closed = true }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestRegisterAndSend(t *testing.T) {
	r := presence.NewMemory()
	c := &fakeConn{handle: "h1", user: "u1"}
	if ev := r.Register("u1", c); ev != nil {
		t.Fatal("first registration evicts nothing")
	}
	if !r.Send("u1", model.Event{Type: model.EventReceiveMessage}) {
		t.Fatal("send to online user must succeed")
	}
	if c.count() != 1 {
		t.Fatalf("expected 1 event, got %d", c.count())
	}
	if r.Send("u2", model.Event{Type: model.EventReceiveMessage}) {
		t.Fatal("send to offline user must report false")
	}
}

func TestReconnectEvictsStaleConnection(t *testing.T) {
	r := presence.NewMemory()
	old := &fakeConn{handle: "h1", user: "u1"}
	fresh := &fakeConn{handle: "h2", user: "u1"}
	r.Register("u1", old)
	evicted := r.Register("u1", fresh)
	if evicted != old {
		t.Fatal("stale connection must be returned as evicted")
	}
	if _, ok := r.Unregister("h1"); ok {
		t.Fatal("unregistering the evicted handle must be a no-op")
	}
	got, ok := r.Lookup("u1")
	if !ok || got.Handle() != "h2" {
		t.Fatal("fresh connection must stay registered")
	}
	if online := r.Online(); len(online) != 1 {
		t.Fatalf("one mapping per identity, got %v", online)
	}
}

func TestUnregister(t *testing.T) {
	r := presence.NewMemory()
	r.Register("u1", &fakeConn{handle: "h1", user: "u1"})
	userID, ok := r.Unregister("h1")
	if !ok || userID != "u1" {
		t.Fatalf("Unregister = %q, %v", userID, ok)
	}
	if _, ok := r.Lookup("u1"); ok {
		t.Fatal("user must be offline")
	}
}

func TestBroadcastConcurrent(t *testing.T) {
	r := presence.NewMemory()
	conns := make([]*fakeConn, 20)
	var wg sync.WaitGroup
	for i := range conns {
		conns[i] = &fakeConn{handle: fmt.Sprintf("h%d", i), user: fmt.Sprintf("u%d", i)}
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			r.Register(c.user, c)
		}(conns[i])
	}
	wg.Wait()
	r.Broadcast(model.Event{Type: model.EventOnlineUsers, Payload: r.Online()})
	for _, c := range conns {
		if c.count() != 1 {
			t.Fatalf("%s got %d events", c.user, c.count())
		}
	}
}
