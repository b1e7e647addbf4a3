package service_test

import (
	"context"
	"testing"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/service"
)

func TestRaiseOneRecordPerRecipient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder("U1"))
	out, err := f.notifications.Raise(ctx, service.RaiseInput{
		Type:       model.NotificationAccountActivation,
		Actor:      "system",
		Recipients: []string{"U1", "U2", "U1", ""},
		Content:    "welcome",
	})
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	for _, n := range out {
		if len(n.NotifiedTo) != 1 || n.IsAccepted != nil {
			t.Fatalf("unexpected record %+v", n)
		}
	}
	if len(f.push.of("U1", model.EventReceiveNotification)) != 1 {
		t.Fatal("online recipient must get receive-notification")
	}
	if list, _ := f.notifRepo.ListByRecipient(ctx, "U2"); len(list) != 1 {
		t.Fatal("offline recipient keeps the record")
	}
}

func TestRaiseValidation(t *testing.T) {
	f := newFixture(t, newRecorder())
	ctx := context.Background()
	if _, err := f.notifications.Raise(ctx, service.RaiseInput{Type: "spam", Recipients: []string{"U"}}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("unknown type: expected validation, got %v", err)
	}
	if _, err := f.notifications.Raise(ctx, service.RaiseInput{Type: model.NotificationMessage}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("no recipients: expected validation, got %v", err)
	}
}

func TestInboxIsScopedToCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder())
	u1 := f.user(t, "U1", model.RoleCustomer)
	u2 := f.user(t, "U2", model.RoleCustomer)
	out, _ := f.notifications.Raise(ctx, service.RaiseInput{Type: model.NotificationMessage, Recipients: []string{"U1", "U2"}})
	var u1Note string
	for _, n := range out {
		if n.NotifiedTo[0] == "U1" {
			u1Note = n.ID
		}
	}

	if err := f.notifications.MarkRead(ctx, u2, u1Note); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("foreign mark read: expected not found, got %v", err)
	}
	if err := f.notifications.Delete(ctx, u2, u1Note); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("foreign delete: expected not found, got %v", err)
	}
	if err := f.notifications.MarkRead(ctx, u1, u1Note); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n, _ := f.notifications.MarkAllRead(ctx, u2); n != 1 {
		t.Fatalf("MarkAllRead = %d, want 1", n)
	}
	if n, _ := f.notifications.DeleteAll(ctx, u1); n != 1 {
		t.Fatalf("DeleteAll = %d, want 1", n)
	}
	if list, _ := f.notifications.List(ctx, u2); len(list) != 1 || !list[0].IsRead {
		t.Fatalf("U2 inbox untouched by U1: %+v", list)
	}
}

func TestDeclinePendingRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder())
	guest := f.user(t, "G", model.RoleCustomer)
	m := f.user(t, "M", model.RoleModerator)
	f.convs.CreateOrJoin(ctx, guest, "")
	list, _ := f.notifications.List(ctx, m)
	if len(list) != 1 {
		t.Fatalf("expected pending request, got %d", len(list))
	}
	if err := f.notifications.Decline(ctx, m, list[0].ID); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if err := f.notifications.Decline(ctx, m, list[0].ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("already resolved: expected not found, got %v", err)
	}
	list, _ = f.notifications.List(ctx, m)
	if list[0].IsAccepted == nil || *list[0].IsAccepted {
		t.Fatal("declined request must be accepted=false")
	}
}

func TestNotifyOrderUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder())
	c := f.user(t, "C", model.RoleCustomer)
	m := f.user(t, "M", model.RoleAdmin)
	f.orders.Put(model.Order{ID: "o1", UserID: "C", ProductName: "Lamp", Status: "paid"})

	if _, err := f.notifications.NotifyOrderUpdate(ctx, c, "o1", "shipped"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("customer: expected forbidden, got %v", err)
	}
	out, err := f.notifications.NotifyOrderUpdate(ctx, m, "o1", "shipped")
	if err != nil || len(out) != 1 || out[0].NotifiedTo[0] != "C" || *out[0].OrderID != "o1" {
		t.Fatalf("NotifyOrderUpdate: %+v %v", out, err)
	}
	if out[0].Content != "Your order Lamp is now shipped" {
		t.Fatalf("content = %q", out[0].Content)
	}
}

func TestNotifyNewMessage(t *testing.T) {
	ctx := context.Background()
	f, m, _, conv := setupPair(t, newRecorder())
	msg, _ := f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "order shipped"})
	out, err := f.notifications.NotifyNewMessage(ctx, m, msg.ID)
	if err != nil || len(out) != 1 || out[0].NotifiedTo[0] != "C" || out[0].Type != model.NotificationMessage {
		t.Fatalf("NotifyNewMessage: %+v %v", out, err)
	}
}

func TestRelayIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder("U1"))
	sender := f.user(t, "S", model.RoleCustomer)
	if n := f.notifications.Relay(ctx, sender, []string{"U1", "U2"}, map[string]string{"hello": "world"}); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if list, _ := f.notifRepo.ListByRecipient(ctx, "U1"); len(list) != 0 {
		t.Fatal("relay must not persist anything")
	}
}
