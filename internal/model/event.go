package model

// EventType: имя события в real-time канале.
type EventType string

const (
	// client -> server
	EventUserOnline       EventType = "user-online"
	EventSendMessage      EventType = "send-message"
	EventTyping           EventType = "typing"
	EventMarkAsRead       EventType = "mark-as-read"
	EventStartCall        EventType = "start-call"
	EventEndCall          EventType = "end-call"
	EventMissedCall       EventType = "missed-call"
	EventJoinGroupCall    EventType = "join-group-call"
	EventLeaveGroupCall   EventType = "leave-group-call"
	EventSendNotification EventType = "send-notification"

	// server -> client
	EventOnlineUsers           EventType = "online-users"
	EventReceiveMessage        EventType = "receive-message"
	EventUserTyping            EventType = "user-typing"
	EventMessageRead           EventType = "message-read"
	EventConversationRead      EventType = "conversation-read"
	EventIncomingCall          EventType = "incoming-call"
	EventCallEnded             EventType = "call-ended"
	EventCallParticipantJoined EventType = "call-participant-joined"
	EventCallParticipantLeft   EventType = "call-participant-left"
	EventReceiveNotification   EventType = "receive-notification"
	EventNotificationResolved  EventType = "notification-resolved"
	EventAck                   EventType = "ack"
	EventError                 EventType = "error"

	// в обе стороны
	EventCallSignal EventType = "call-signal"
)

// Event: то, что сервер отправляет клиенту.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id,omitempty"`
	GroupID        string `json:"group_id,omitempty"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

type MessageReadPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

type ThreadReadPayload struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
}

type CallParticipantPayload struct {
	CallID string `json:"call_id"`
	UserID string `json:"user_id"`
}

type CallSignalPayload struct {
	CallID    string `json:"call_id"`
	From      string `json:"from"`
	Kind      string `json:"kind"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}
