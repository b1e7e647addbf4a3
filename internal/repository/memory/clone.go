// Package memory хранит данные чата в памяти процесса. Используется в тестах и при STORAGE_DRIVER=memory.
// Каждая операция выполняется под мьютексом репозитория, поэтому условные обновления атомарны.
package memory

import (
	"maps"
	"slices"
	"time"

	"github.com/supportdesk/internal/model"
)

func cloneStrPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlots(in []*string) []*string {
	out := make([]*string, len(in))
	for i, p := range in {
		out[i] = cloneStrPtr(p)
	}
	return out
}

func cloneUnread(in map[string]int) map[string]int {
	if in == nil {
		return map[string]int{}
	}
	return maps.Clone(in)
}

func cloneIDs(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}

func addToSet(set []string, id string) []string {
	if slices.Contains(set, id) {
		return set
	}
	return append(set, id)
}

func removeFromSet(set []string, id string) []string {
	return slices.DeleteFunc(set, func(s string) bool { return s == id })
}

// recomputeUnread: каждый получатель получает предыдущее значение +1, остальные записи удаляются.
func recomputeUnread(prev map[string]int, receivers []string) map[string]int {
	next := make(map[string]int, len(receivers))
	for _, r := range receivers {
		next[r] = prev[r] + 1
	}
	return next
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	out := *c
	out.Recipients = cloneSlots(c.Recipients)
	out.MessageIDs = cloneIDs(c.MessageIDs)
	out.LastMessageID = cloneStrPtr(c.LastMessageID)
	out.Unread = cloneUnread(c.Unread)
	out.MutedUsers = cloneIDs(c.MutedUsers)
	out.TypingUsers = cloneIDs(c.TypingUsers)
	return &out
}

func cloneGroup(g *model.GroupConversation) *model.GroupConversation {
	out := *g
	out.Members = cloneIDs(g.Members)
	out.MessageIDs = cloneIDs(g.MessageIDs)
	out.LastMessageID = cloneStrPtr(g.LastMessageID)
	out.Unread = cloneUnread(g.Unread)
	out.MutedMembers = cloneIDs(g.MutedMembers)
	out.TypingUsers = cloneIDs(g.TypingUsers)
	return &out
}

func cloneMessage(m *model.Message) *model.Message {
	out := *m
	out.ReceiverIDs = cloneIDs(m.ReceiverIDs)
	out.Attachments = cloneIDs(m.Attachments)
	out.ConversationID = cloneStrPtr(m.ConversationID)
	out.GroupID = cloneStrPtr(m.GroupID)
	if m.Order != nil {
		o := *m.Order
		out.Order = &o
	}
	out.ReadBy = cloneIDs(m.ReadBy)
	out.DeliveredAt = cloneTimePtr(m.DeliveredAt)
	out.ReadAt = cloneTimePtr(m.ReadAt)
	return &out
}

func cloneNotification(n *model.Notification) *model.Notification {
	out := *n
	out.NotifiedTo = cloneIDs(n.NotifiedTo)
	out.MessageID = cloneStrPtr(n.MessageID)
	out.OrderID = cloneStrPtr(n.OrderID)
	out.ConversationID = cloneStrPtr(n.ConversationID)
	out.ReadAt = cloneTimePtr(n.ReadAt)
	if n.IsAccepted != nil {
		v := *n.IsAccepted
		out.IsAccepted = &v
	}
	return &out
}

func cloneCall(c *model.Call) *model.Call {
	out := *c
	out.ReceiverID = cloneStrPtr(c.ReceiverID)
	out.GroupID = cloneStrPtr(c.GroupID)
	out.Participants = cloneIDs(c.Participants)
	out.MissedBy = cloneIDs(c.MissedBy)
	out.EndedAt = cloneTimePtr(c.EndedAt)
	if c.EndReason != nil {
		v := *c.EndReason
		out.EndReason = &v
	}
	return &out
}

func cloneUser(u *model.User) *model.User {
	out := *u
	out.SocketID = cloneStrPtr(u.SocketID)
	out.LastSeen = cloneTimePtr(u.LastSeen)
	out.SuspensionExpiresAt = cloneTimePtr(u.SuspensionExpiresAt)
	return &out
}
