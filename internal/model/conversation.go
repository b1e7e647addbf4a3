package model

import (
	"slices"
	"time"
)

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationDeleted  ConversationStatus = "deleted"
)

// MaxRecipients: личный диалог всегда на двоих (клиент и сотрудник).
const MaxRecipients = 2

// Conversation: диалог один-на-один. Пустой слот (nil) может занять любой сотрудник.
type Conversation struct {
	ID            string             `json:"id"`
	Recipients    []*string          `json:"recipients"`
	MessageIDs    []string           `json:"message_ids"`
	LastMessageID *string            `json:"last_message_id,omitempty"`
	Unread        map[string]int     `json:"unread_messages"`
	MutedUsers    []string           `json:"muted_users"`
	TypingUsers   []string           `json:"typing_users"`
	Status        ConversationStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Participants возвращает занятые слоты по порядку.
func (c *Conversation) Participants() []string {
	out := make([]string, 0, len(c.Recipients))
	for _, r := range c.Recipients {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants(), userID)
}

// NullSlot возвращает индекс первого пустого слота или -1.
func (c *Conversation) NullSlot() int {
	for i, r := range c.Recipients {
		if r == nil {
			return i
		}
	}
	return -1
}

// Others возвращает участников, кроме userID.
func (c *Conversation) Others(userID string) []string {
	out := make([]string, 0, len(c.Recipients))
	for _, p := range c.Participants() {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// UnreadFor: ok=false означает, что записи для пользователя нет (не то же самое, что ноль).
func (c *Conversation) UnreadFor(userID string) (int, bool) {
	n, ok := c.Unread[userID]
	return n, ok
}

func (c *Conversation) IsMuted(userID string) bool {
	return slices.Contains(c.MutedUsers, userID)
}

// Slot возвращает указатель на строку для поля recipients.
func Slot(id string) *string { return &id }
