package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/service"
)

func TestGuestCreatesConversationAndNotifiesAllStaff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder())
	guest := f.user(t, "G", model.RoleCustomer)
	f.user(t, "M1", model.RoleModerator)
	f.user(t, "M2", model.RoleAdmin)
	f.user(t, "C2", model.RoleCustomer)

	conv, err := f.convs.CreateOrJoin(ctx, guest, "")
	if err != nil {
		t.Fatalf("CreateOrJoin: %v", err)
	}
	if len(conv.Recipients) != 2 || conv.Recipients[0] != nil || *conv.Recipients[1] != "G" {
		t.Fatalf("expected [nil, G], got %v", conv.Participants())
	}
	for _, staff := range []string{"M1", "M2"} {
		list, _ := f.notifRepo.ListByRecipient(ctx, staff)
		if len(list) != 1 || list[0].Type != model.NotificationCustomerRequest || *list[0].ConversationID != conv.ID {
			t.Fatalf("%s: expected one customer_request, got %+v", staff, list)
		}
	}
	if list, _ := f.notifRepo.ListByRecipient(ctx, "C2"); len(list) != 0 {
		t.Fatal("customers must not receive customer requests")
	}
	if f.push.total() != 0 {
		t.Fatal("nobody is online, nothing must be pushed")
	}

	again, err := f.convs.CreateOrJoin(ctx, guest, "G")
	if err != nil || again.ID != conv.ID {
		t.Fatalf("second call must return the same conversation: %v", err)
	}
}

func TestGuestCannotTargetOthers(t *testing.T) {
	f := newFixture(t, newRecorder())
	guest := f.user(t, "G", model.RoleCustomer)
	f.user(t, "M", model.RoleModerator)
	if _, err := f.convs.CreateOrJoin(context.Background(), guest, "M"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestStaffClaimsNullSlotAndResolvesRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder("M1", "M2"))
	guest := f.user(t, "G", model.RoleCustomer)
	m1 := f.user(t, "M1", model.RoleModerator)
	f.user(t, "M2", model.RoleModerator)

	conv, _ := f.convs.CreateOrJoin(ctx, guest, "")
	claimed, err := f.convs.CreateOrJoin(ctx, m1, "G")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.ID != conv.ID {
		t.Fatal("staff must join the existing conversation")
	}
	if p := claimed.Participants(); len(p) != 2 || p[0] != "M1" || p[1] != "G" {
		t.Fatalf("expected [M1, G], got %v", p)
	}

	accepted := map[string]bool{}
	for _, id := range []string{"M1", "M2"} {
		list, _ := f.notifRepo.ListByRecipient(ctx, id)
		if len(list) != 1 || list[0].IsAccepted == nil {
			t.Fatalf("%s: request must be resolved, got %+v", id, list)
		}
		accepted[id] = *list[0].IsAccepted
		if len(f.push.of(id, model.EventNotificationResolved)) != 1 {
			t.Fatalf("%s must receive notification-resolved", id)
		}
	}
	if !accepted["M1"] || accepted["M2"] {
		t.Fatalf("claimer accepted, others declined; got %v", accepted)
	}
}

func TestConcurrentClaimsNeverExceedTwoRecipients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder())
	guest := f.user(t, "G", model.RoleCustomer)
	conv, _ := f.convs.CreateOrJoin(ctx, guest, "")

	const n = 8
	staff := make([]*model.User, n)
	for i := range staff {
		staff[i] = f.user(t, fmt.Sprintf("M%d", i), model.RoleModerator)
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, s := range staff {
		wg.Add(1)
		go func(u *model.User) {
			defer wg.Done()
			c, err := f.convs.CreateOrJoin(ctx, u, "G")
			if err != nil {
				if !apperr.Is(err, apperr.KindForbidden) && !apperr.Is(err, apperr.KindConflict) {
					t.Errorf("%s: unexpected error %v", u.ID, err)
				}
				return
			}
			if c.ID == conv.ID && c.HasParticipant(u.ID) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	final, _ := f.convRepo.GetByID(ctx, conv.ID)
	if len(final.Recipients) > 2 {
		t.Fatalf("recipients overflow: %d", len(final.Recipients))
	}
	if final.NullSlot() != -1 || len(final.Participants()) != 2 {
		t.Fatalf("slot must be claimed exactly once, got %v", final.Participants())
	}
	if wins != 1 {
		t.Fatalf("exactly one staff member must win the slot, got %d", wins)
	}
}

func TestStaffJoinFullConversationForbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder())
	guest := f.user(t, "G", model.RoleCustomer)
	m1 := f.user(t, "M1", model.RoleModerator)
	m2 := f.user(t, "M2", model.RoleModerator)
	f.convs.CreateOrJoin(ctx, guest, "")
	f.convs.CreateOrJoin(ctx, m1, "G")

	if _, err := f.convs.CreateOrJoin(ctx, m2, "G"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	again, err := f.convs.CreateOrJoin(ctx, m1, "G")
	if err != nil || !again.HasParticipant("M1") {
		t.Fatalf("participant must get the conversation back: %v", err)
	}
}

func TestStaffStartsNewConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder())
	m := f.user(t, "M", model.RoleAdmin)
	f.user(t, "C", model.RoleCustomer)

	conv, err := f.convs.CreateOrJoin(ctx, m, "C")
	if err != nil {
		t.Fatalf("CreateOrJoin: %v", err)
	}
	if p := conv.Participants(); len(p) != 2 || p[0] != "M" || p[1] != "C" {
		t.Fatalf("expected [M, C], got %v", p)
	}
	if _, err := f.convs.CreateOrJoin(ctx, m, "nobody"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("unknown recipient: expected not found, got %v", err)
	}
}

func setupPair(t *testing.T, push *recorder) (*fixture, *model.User, *model.User, *model.Conversation) {
	t.Helper()
	f := newFixture(t, push)
	m := f.user(t, "M", model.RoleModerator)
	c := f.user(t, "C", model.RoleCustomer)
	conv, err := f.convs.CreateOrJoin(context.Background(), m, "C")
	if err != nil {
		t.Fatalf("CreateOrJoin: %v", err)
	}
	return f, m, c, conv
}

func TestSendMessageUpdatesUnreadAndPushes(t *testing.T) {
	ctx := context.Background()
	f, m, _, conv := setupPair(t, newRecorder("C"))

	var last *model.Message
	for i := 0; i < 3; i++ {
		msg, err := f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "hello"})
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		last = msg
	}
	got, _ := f.convRepo.GetByID(ctx, conv.ID)
	if got.LastMessageID == nil || *got.LastMessageID != last.ID {
		t.Fatal("last message must be the newest one")
	}
	if n, ok := got.UnreadFor("C"); !ok || n != 3 {
		t.Fatalf("receiver unread = %d (%v), want 3", n, ok)
	}
	if _, ok := got.UnreadFor("M"); ok {
		t.Fatal("sender must have no unread entry")
	}
	if len(f.push.of("C", model.EventReceiveMessage)) != 3 {
		t.Fatal("online receiver must get every message")
	}
}

func TestSendMessageToOfflineRecipient(t *testing.T) {
	ctx := context.Background()
	f, m, _, conv := setupPair(t, newRecorder())
	msg, err := f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "are you there?"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	stored, err := f.msgRepo.GetByID(ctx, msg.ID)
	if err != nil {
		t.Fatal("message must be persisted")
	}
	if stored.DeliveredAt == nil || !stored.DeliveredAt.Equal(stored.CreatedAt) {
		t.Fatalf("delivered_at = %v, want send time %v", stored.DeliveredAt, stored.CreatedAt)
	}
	if n, _, _ := f.convs.Unread(ctx, conv.ID, "C"); n != 1 {
		t.Fatalf("unread = %d, want 1", n)
	}
	if f.push.total() != 0 {
		t.Fatal("no push for offline recipient")
	}
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	f, m, _, conv := setupPair(t, newRecorder())
	outsider := f.user(t, "X", model.RoleCustomer)

	if _, err := f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "  "}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("empty message: expected validation, got %v", err)
	}
	if _, err := f.convs.SendMessage(ctx, outsider, service.SendInput{ConversationID: conv.ID, Text: "hi"}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("outsider: expected forbidden, got %v", err)
	}
	if _, err := f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: "missing", Text: "hi"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing conversation: expected not found, got %v", err)
	}
}

func TestSendMessageSnapshotsOrder(t *testing.T) {
	ctx := context.Background()
	f, _, c, conv := setupPair(t, newRecorder())
	f.orders.Put(model.Order{ID: "o1", UserID: "C", ProductName: "Lamp", TotalPrice: 19.5, Status: "paid"})

	msg, err := f.convs.SendMessage(ctx, c, service.SendInput{ConversationID: conv.ID, OrderID: "o1"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	f.orders.Put(model.Order{ID: "o1", UserID: "C", ProductName: "Lamp", TotalPrice: 25, Status: "shipped"})

	stored, _ := f.msgRepo.GetByID(ctx, msg.ID)
	if stored.Order == nil || stored.Order.TotalPrice != 19.5 || stored.Order.Status != "paid" {
		t.Fatalf("snapshot must be frozen at send time, got %+v", stored.Order)
	}
}

func TestMarkReadRemovesUnreadEntry(t *testing.T) {
	ctx := context.Background()
	f, m, c, conv := setupPair(t, newRecorder("M"))
	f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "one"})
	f.convs.SendMessage(ctx, m, service.SendInput{ConversationID: conv.ID, Text: "two"})

	n, err := f.convs.MarkRead(ctx, c, conv.ID)
	if err != nil || n != 2 {
		t.Fatalf("MarkRead = %d, %v", n, err)
	}
	if _, ok, _ := f.convs.Unread(ctx, conv.ID, "C"); ok {
		t.Fatal("unread entry must be removed, not zeroed")
	}
	msgs, _ := f.msgRepo.ListByThread(ctx, conv.ID)
	for _, msg := range msgs {
		if !msg.IsRead || msg.ReadAt == nil {
			t.Fatalf("message %s must be read", msg.ID)
		}
	}
	if len(f.push.of("M", model.EventConversationRead)) != 1 {
		t.Fatal("other participant must get conversation-read")
	}
}

func TestMuteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f, m, _, conv := setupPair(t, newRecorder())
	f.convs.Mute(ctx, m, conv.ID)
	got, err := f.convs.Mute(ctx, m, conv.ID)
	if err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if len(got.MutedUsers) != 1 || got.MutedUsers[0] != "M" {
		t.Fatalf("muted set must be unchanged, got %v", got.MutedUsers)
	}
	got, _ = f.convs.Unmute(ctx, m, conv.ID)
	if len(got.MutedUsers) != 0 {
		t.Fatalf("unmute: got %v", got.MutedUsers)
	}
}

func TestArchiveAndDelete(t *testing.T) {
	ctx := context.Background()
	f, m, c, conv := setupPair(t, newRecorder())
	got, err := f.convs.Archive(ctx, c, conv.ID)
	if err != nil || got.Status != model.ConversationArchived {
		t.Fatalf("Archive: %v %v", got, err)
	}
	if err := f.convs.Delete(ctx, m, conv.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.convs.Get(ctx, m, conv.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("deleted conversation must be not found, got %v", err)
	}
	if list, _ := f.convs.List(ctx, m); len(list) != 0 {
		t.Fatal("deleted conversation must disappear from lists")
	}
}

func TestTypingAlwaysPushes(t *testing.T) {
	ctx := context.Background()
	f, m, _, conv := setupPair(t, newRecorder("C"))
	f.convs.Typing(ctx, m, conv.ID, true)
	f.convs.Typing(ctx, m, conv.ID, true)
	f.convs.Typing(ctx, m, conv.ID, false)
	if got := len(f.push.of("C", model.EventUserTyping)); got != 3 {
		t.Fatalf("expected 3 typing events, got %d", got)
	}
	stored, _ := f.convRepo.GetByID(ctx, conv.ID)
	if len(stored.TypingUsers) != 0 {
		t.Fatalf("typing set = %v", stored.TypingUsers)
	}
}

func TestListStaffSeesAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder())
	a := f.user(t, "A", model.RoleCustomer)
	b := f.user(t, "B", model.RoleCustomer)
	m := f.user(t, "M", model.RoleModerator)
	f.convs.CreateOrJoin(ctx, a, "")
	f.convs.CreateOrJoin(ctx, b, "")

	if list, _ := f.convs.List(ctx, a); len(list) != 1 {
		t.Fatalf("customer sees only own conversation, got %d", len(list))
	}
	if list, _ := f.convs.List(ctx, m); len(list) != 2 {
		t.Fatalf("staff sees all conversations, got %d", len(list))
	}
	if _, err := f.convs.Get(ctx, a, mustFirst(t, f, b).ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("customer must not read foreign conversation, got %v", err)
	}
}

func mustFirst(t *testing.T, f *fixture, u *model.User) *model.Conversation {
	t.Helper()
	list, err := f.convs.List(context.Background(), u)
	if err != nil || len(list) == 0 {
		t.Fatalf("no conversation for %s: %v", u.ID, err)
	}
	return &list[0]
}

func TestReleaseReopensSlotForOtherStaff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newRecorder())
	guest := f.user(t, "G", model.RoleCustomer)
	m1 := f.user(t, "M1", model.RoleModerator)
	m2 := f.user(t, "M2", model.RoleModerator)
	conv, _ := f.convs.CreateOrJoin(ctx, guest, "")
	f.convs.CreateOrJoin(ctx, m1, "G")

	if _, err := f.convs.Release(ctx, guest, conv.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("customer release: expected forbidden, got %v", err)
	}
	released, err := f.convs.Release(ctx, m1, conv.ID)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.NullSlot() < 0 || released.HasParticipant("M1") {
		t.Fatalf("slot must be free again, got %v", released.Participants())
	}
	list, _ := f.notifRepo.ListByRecipient(ctx, "M2")
	var transfer *model.Notification
	for i := range list {
		if list[i].Type == model.NotificationChatTransfer {
			transfer = &list[i]
		}
	}
	if transfer == nil {
		t.Fatal("other staff must receive chat_transfer")
	}

	joined, err := f.convs.CreateOrJoin(ctx, m2, "G")
	if err != nil || joined.ID != conv.ID || !joined.HasParticipant("M2") {
		t.Fatalf("M2 must claim the released slot: %v", err)
	}
}
