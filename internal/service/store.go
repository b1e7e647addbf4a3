package service

import (
	"context"
	"time"

	"github.com/supportdesk/internal/model"
)

// Хранилища, которые нужны сервисам. Реализации: repository (Postgres) и repository/memory.

type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	ListStaff(ctx context.Context) ([]model.User, error)
}

type ConversationStore interface {
	Create(ctx context.Context, c *model.Conversation) error
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]model.Conversation, error)
	ListAll(ctx context.Context) ([]model.Conversation, error)
	// ClaimSlot занимает слот с индексом slot, только если он всё ещё пуст.
	ClaimSlot(ctx context.Context, id string, slot int, userID string) (bool, error)
	// AppendRecipient добавляет участника, только если слотов меньше двух и его там нет.
	AppendRecipient(ctx context.Context, id, userID string) (bool, error)
	ReleaseSlot(ctx context.Context, id, userID string) (bool, error)
	// RecordMessage дописывает сообщение, обновляет last_message и пересчитывает непрочитанные.
	RecordMessage(ctx context.Context, id, messageID string, receivers []string) error
	ClearUnread(ctx context.Context, id, userID string) error
	SetMuted(ctx context.Context, id, userID string, muted bool) error
	SetTyping(ctx context.Context, id, userID string, typing bool) error
	SetStatus(ctx context.Context, id string, status model.ConversationStatus) error
}

type GroupStore interface {
	Create(ctx context.Context, g *model.GroupConversation) error
	GetByID(ctx context.Context, id string) (*model.GroupConversation, error)
	ListByMember(ctx context.Context, userID string) ([]model.GroupConversation, error)
	AddMember(ctx context.Context, id, userID string) (bool, error)
	RemoveMember(ctx context.Context, id, userID string) (bool, error)
	RecordMessage(ctx context.Context, id, messageID string, receivers []string) error
	ClearUnread(ctx context.Context, id, userID string) error
	SetMuted(ctx context.Context, id, userID string, muted bool) error
	SetTyping(ctx context.Context, id, userID string, typing bool) error
	Delete(ctx context.Context, id string) error
}

type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListByThread(ctx context.Context, threadID string) ([]model.Message, error)
	MarkThreadRead(ctx context.Context, threadID, userID string, at time.Time) (int64, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) (*model.Message, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
}

type PinStore interface {
	Pin(ctx context.Context, threadID, messageID, pinnedBy string) error
	Unpin(ctx context.Context, threadID, messageID string) error
	GetPinned(ctx context.Context, threadID string) ([]model.PinnedMessage, error)
}

type NotificationStore interface {
	CreateMany(ctx context.Context, ns []*model.Notification) error
	ListByRecipient(ctx context.Context, userID string) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
	DeleteAll(ctx context.Context, userID string) (int64, error)
	// ResolvePending решает все ожидающие запросы по диалогу: копия acceptedBy принята, остальные отклонены.
	ResolvePending(ctx context.Context, conversationID, acceptedBy string) ([]model.Notification, error)
	Decline(ctx context.Context, id, userID string) (bool, error)
}

type CallStore interface {
	Create(ctx context.Context, c *model.Call) error
	GetByID(ctx context.Context, id string) (*model.Call, error)
	// Finish переводит активный звонок в конечный статус; false, если звонок уже завершён.
	Finish(ctx context.Context, id string, status model.CallStatus, reason model.EndReason, endedAt time.Time, missedBy []string) (bool, error)
	AddParticipant(ctx context.Context, id, userID string) (bool, error)
	RemoveParticipant(ctx context.Context, id, userID string) (bool, error)
	ListActive(ctx context.Context, userID string) ([]model.Call, error)
	ListHistory(ctx context.Context, userID string, limit int) ([]model.Call, error)
}

type OrderStore interface {
	GetByID(ctx context.Context, id string) (*model.Order, error)
}

// Pusher доставляет событие пользователю, если он сейчас подключён. Без гарантий доставки.
type Pusher interface {
	Send(userID string, ev model.Event) bool
}
