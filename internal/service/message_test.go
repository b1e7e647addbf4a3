package service_test

import (
	"context"
	"testing"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/service"
)

func TestDeleteMessageBlanksContent(t *testing.T) {
	ctx := context.Background()
	f, m, c, conv := setupPair(t, newRecorder())
	msg, _ := f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "secret", Attachments: []string{"a.png"}})

	if _, err := f.messages.Delete(ctx, c, msg.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("non-sender delete: expected forbidden, got %v", err)
	}
	got, err := f.messages.Delete(ctx, m, msg.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !got.IsDeleted || got.Text != model.DeletedMessageText || len(got.Attachments) != 0 {
		t.Fatalf("unexpected deleted message %+v", got)
	}
	again, err := f.messages.Delete(ctx, m, msg.ID)
	if err != nil || again.Text != model.DeletedMessageText {
		t.Fatalf("second delete must be a no-op: %v", err)
	}
	read, err := f.messages.MarkRead(ctx, c, msg.ID)
	if err != nil || read.IsRead {
		t.Fatalf("deleted message must stay unread: %v", err)
	}
}

func TestStaffDeleteNeedsThreadAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder())
	owner := f.user(t, "A", model.RoleCustomer)
	f.user(t, "B", model.RoleCustomer)
	mod := f.user(t, "MOD", model.RoleModerator)

	g, err := f.groups.Create(ctx, owner, service.CreateGroupInput{Title: "private", Members: []string{"B"}})
	if err != nil {
		t.Fatalf("Create group: %v", err)
	}
	msg, err := f.groups.SendMessage(ctx, owner, service.SendInput{GroupID: g.ID, Text: "members only"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := f.messages.Delete(ctx, mod, msg.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("non-member staff delete: expected forbidden, got %v", err)
	}
	stored, err := f.msgRepo.GetByID(ctx, msg.ID)
	if err != nil || stored.IsDeleted || stored.Text != "members only" {
		t.Fatalf("message must stay intact: %+v %v", stored, err)
	}

	// Диалоги сотрудникам видны все, значит и удалять в них можно.
	other := f.user(t, "M2", model.RoleAdmin)
	conv, err := f.convs.CreateOrJoin(ctx, other, "B")
	if err != nil {
		t.Fatalf("CreateOrJoin: %v", err)
	}
	sent, err := f.convs.SendMessage(ctx, other, service.SendInput{ConversationID: conv.ID, Text: "oops"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := f.messages.Delete(ctx, mod, sent.ID); err != nil {
		t.Fatalf("staff delete in visible conversation: %v", err)
	}
}

func TestMarkSingleMessageRead(t *testing.T) {
	ctx := context.Background()
	f, m, c, conv := setupPair(t, newRecorder("M"))
	msg, _ := f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "ping"})

	if _, err := f.messages.MarkRead(ctx, m, msg.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("sender cannot mark own message read, got %v", err)
	}
	got, err := f.messages.MarkRead(ctx, c, msg.ID)
	if err != nil || !got.IsRead || len(got.ReadBy) != 1 || got.ReadBy[0] != "C" {
		t.Fatalf("MarkRead: %+v %v", got, err)
	}
	f.messages.MarkRead(ctx, c, msg.ID)
	if n := len(f.push.of("M", model.EventMessageRead)); n != 1 {
		t.Fatalf("sender must get one message-read, got %d", n)
	}
}

func TestListThreadAccess(t *testing.T) {
	ctx := context.Background()
	f, m, _, conv := setupPair(t, newRecorder())
	outsider := f.user(t, "X", model.RoleCustomer)
	f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "1"})
	f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "2"})

	msgs, err := f.messages.ListThread(ctx, m, conv.ID)
	if err != nil || len(msgs) != 2 || msgs[0].Text != "1" {
		t.Fatalf("ListThread: %v %v", msgs, err)
	}
	if _, err := f.messages.ListThread(ctx, outsider, conv.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("outsider: expected forbidden, got %v", err)
	}
	if _, err := f.messages.ListThread(ctx, m, "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing thread: expected not found, got %v", err)
	}
}

func TestPinUnpin(t *testing.T) {
	ctx := context.Background()
	f, m, c, conv := setupPair(t, newRecorder())
	msg, _ := f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "pin me"})

	if err := f.messages.Pin(ctx, c, conv.ID, msg.ID); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	pins, err := f.messages.Pinned(ctx, m, conv.ID)
	if err != nil || len(pins) != 1 || pins[0].Message == nil || pins[0].Message.Text != "pin me" {
		t.Fatalf("Pinned: %+v %v", pins, err)
	}
	if err := f.messages.Pin(ctx, c, conv.ID, "nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("pin unknown message: expected not found, got %v", err)
	}
	if err := f.messages.Unpin(ctx, c, conv.ID, msg.ID); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	if err := f.messages.Unpin(ctx, c, conv.ID, msg.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("second unpin: expected not found, got %v", err)
	}
}
