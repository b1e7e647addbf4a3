package model

import "time"

type NotificationType string

const (
	NotificationMessage           NotificationType = "message"
	NotificationOrderUpdate       NotificationType = "order_update"
	NotificationCustomerRequest   NotificationType = "customer_request"
	NotificationCall              NotificationType = "call"
	NotificationAccountActivation NotificationType = "account_activation"
	NotificationChatTransfer      NotificationType = "chat_transfer"
	NotificationBlockedUser       NotificationType = "blocked_user"
	NotificationGroupInvite       NotificationType = "group_invite"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMessage, NotificationOrderUpdate, NotificationCustomerRequest, NotificationCall,
		NotificationAccountActivation, NotificationChatTransfer, NotificationBlockedUser, NotificationGroupInvite:
		return true
	}
	return false
}

// Claimable: запросы, которые закрываются, когда сотрудник занимает диалог.
func (t NotificationType) Claimable() bool {
	return t == NotificationCustomerRequest || t == NotificationChatTransfer
}

type Notification struct {
	ID             string           `json:"id"`
	Type           NotificationType `json:"notification_type"`
	NotifiedTo     []string         `json:"notified_to"`
	NotifiedBy     string           `json:"notified_by"`
	Content        string           `json:"content"`
	MessageID      *string          `json:"message_id,omitempty"`
	OrderID        *string          `json:"order_id,omitempty"`
	ConversationID *string          `json:"conversation_id,omitempty"`
	IsRead         bool             `json:"is_read"`
	ReadAt         *time.Time       `json:"read_at,omitempty"`
	// IsAccepted: nil пока запрос не решён, затем true/false.
	IsAccepted *bool     `json:"is_accepted"`
	CreatedAt  time.Time `json:"created_at"`
}
