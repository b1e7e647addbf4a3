package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository/memory"
	"github.com/supportdesk/internal/service"
)

// recorder: Pusher, который доставляет только пользователям из online и запоминает события.
type recorder struct {
	mu     sync.Mutex
	online map[string]bool
	events map[string][]model.Event
}

func newRecorder(online ...string) *recorder {
	r := &recorder{online: map[string]bool{}, events: map[string][]model.Event{}}
	for _, id := range online {
		r.online[id] = true
	}
	return r
}

func (r *recorder) Send(userID string, ev model.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online[userID] {
		return false
	}
	r.events[userID] = append(r.events[userID], ev)
	return true
}

func (r *recorder) of(userID string, typ model.EventType) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, ev := range r.events[userID] {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evs := range r.events {
		n += len(evs)
	}
	return n
}

type fixture struct {
	users         *memory.UserRepository
	convRepo      *memory.ConversationRepository
	groupRepo     *memory.GroupRepository
	msgRepo       *memory.MessageRepository
	notifRepo     *memory.NotificationRepository
	callRepo      *memory.CallRepository
	orders        *memory.OrderRepository
	push          *recorder
	notifications *service.NotificationService
	convs         *service.ConversationService
	groups        *service.GroupService
	messages      *service.MessageService
	calls         *service.CallService
}

func newFixture(t *testing.T, push *recorder) *fixture {
	t.Helper()
	f := &fixture{
		users:     memory.NewUserRepository(),
		convRepo:  memory.NewConversationRepository(),
		groupRepo: memory.NewGroupRepository(),
		msgRepo:   memory.NewMessageRepository(),
		notifRepo: memory.NewNotificationRepository(),
		callRepo:  memory.NewCallRepository(),
		orders:    memory.NewOrderRepository(),
		push:      push,
	}
	f.notifications = service.NewNotificationService(f.notifRepo, f.users, f.msgRepo, f.callRepo, f.orders, push)
	f.convs = service.NewConversationService(f.convRepo, f.msgRepo, f.users, f.orders, f.notifications, push)
	f.groups = service.NewGroupService(f.groupRepo, f.msgRepo, f.users, f.orders, f.notifications, push)
	f.messages = service.NewMessageService(f.convRepo, f.groupRepo, f.msgRepo, memory.NewPinRepository(f.msgRepo), push)
	f.calls = service.NewCallService(f.callRepo, f.groupRepo, f.users, push)
	return f
}

func (f *fixture) user(t *testing.T, id string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{ID: id, Name: id, Role: role}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return u
}
