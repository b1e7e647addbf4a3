package model

import (
	"slices"
	"time"
)

// GroupConversation: групповой чат; управлять составом может только владелец.
type GroupConversation struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Image         string         `json:"image"`
	AdminID       string         `json:"admin_id"`
	Members       []string       `json:"members"`
	MessageIDs    []string       `json:"message_ids"`
	LastMessageID *string        `json:"last_message_id,omitempty"`
	Unread        map[string]int `json:"unread_messages"`
	MutedMembers  []string       `json:"muted_members"`
	TypingUsers   []string       `json:"typing_users"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (g *GroupConversation) IsMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

func (g *GroupConversation) Others(userID string) []string {
	out := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m != userID {
			out = append(out, m)
		}
	}
	return out
}

func (g *GroupConversation) UnreadFor(userID string) (int, bool) {
	n, ok := g.Unread[userID]
	return n, ok
}
