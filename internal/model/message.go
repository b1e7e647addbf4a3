package model

import "time"

// DeletedMessageText заменяет текст удалённого сообщения.
const DeletedMessageText = "This message was deleted"

// OrderSnapshot фиксирует данные заказа на момент отправки; последующие правки заказа на него не влияют.
type OrderSnapshot struct {
	OrderID      string  `json:"order_id"`
	ProductName  string  `json:"product_name"`
	TotalPrice   float64 `json:"total_price"`
	ProductImage string  `json:"product_image"`
	Status       string  `json:"status"`
}

type Message struct {
	ID             string         `json:"id"`
	SenderID       string         `json:"sender_id"`
	ReceiverIDs    []string       `json:"receiver_ids"`
	Text           string         `json:"text"`
	Attachments    []string       `json:"attachments"`
	ConversationID *string        `json:"conversation_id,omitempty"`
	GroupID        *string        `json:"group_id,omitempty"`
	Order          *OrderSnapshot `json:"order,omitempty"`
	IsRead         bool           `json:"is_read"`
	ReadBy         []string       `json:"read_by"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	IsDeleted      bool           `json:"is_deleted"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ThreadID возвращает id диалога или группы, которой принадлежит сообщение.
func (m *Message) ThreadID() string {
	if m.ConversationID != nil {
		return *m.ConversationID
	}
	if m.GroupID != nil {
		return *m.GroupID
	}
	return ""
}

type PinnedMessage struct {
	ThreadID  string    `json:"thread_id"`
	MessageID string    `json:"message_id"`
	PinnedBy  string    `json:"pinned_by"`
	PinnedAt  time.Time `json:"pinned_at"`
	Message   *Message  `json:"message,omitempty"`
}
