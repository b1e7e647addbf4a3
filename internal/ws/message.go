package ws

import (
	"encoding/json"

	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/service"
)

// IncomingMessage is what the client sends to the server.
// Ack is optional: when set, the hub answers with an ack event carrying the same id.
type IncomingMessage struct {
	Type    model.EventType `json:"type"`
	Ack     string          `json:"ack,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	ackSuccess = "success"
	ackError   = "error"
)

// AckPayload is the reply to a client event that carried an ack id.
type AckPayload struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// --- Typed inbound payloads ---

// typingRequest: ровно одно из ConversationID / GroupID.
type typingRequest struct {
	ConversationID string `json:"conversationId"`
	GroupID        string `json:"groupId"`
	IsTyping       bool   `json:"isTyping"`
}

// markReadRequest: диалог, группа или одно сообщение.
type markReadRequest struct {
	ConversationID string `json:"conversationId"`
	GroupID        string `json:"groupId"`
	MessageID      string `json:"messageId"`
}

type callRequest struct {
	CallID string          `json:"callId"`
	Reason model.EndReason `json:"reason"`
}

type relayRequest struct {
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}

// sendMessageRequest совпадает с REST-телом отправки.
type sendMessageRequest = service.SendInput

// readResult: ответ на mark-as-read.
type readResult struct {
	Marked int64 `json:"marked"`
}

type relayResult struct {
	Delivered int `json:"delivered"`
}

type signalResult struct {
	Delivered bool `json:"delivered"`
}
