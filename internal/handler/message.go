package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/service"
)

type MessageHandler struct {
	messages *service.MessageService
	convs    *service.ConversationService
	groups   *service.GroupService
}

func NewMessageHandler(messages *service.MessageService, convs *service.ConversationService, groups *service.GroupService) *MessageHandler {
	return &MessageHandler{messages: messages, convs: convs, groups: groups}
}

// List возвращает сообщения диалога или группы по id потока.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.messages.ListThread(r.Context(), currentUser(r), chi.URLParam(r, "threadId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Messages fetched", list)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.Delete(r.Context(), currentUser(r), chi.URLParam(r, "messageId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Message deleted", msg)
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.MarkRead(r.Context(), currentUser(r), chi.URLParam(r, "messageId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Message marked as read", msg)
}

// Typing принимает conversationId или groupId в теле.
func (h *MessageHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var err error
	switch {
	case req.GroupID != "":
		err = h.groups.Typing(r.Context(), currentUser(r), req.GroupID, req.IsTyping)
	case req.ConversationID != "":
		err = h.convs.Typing(r.Context(), currentUser(r), req.ConversationID, req.IsTyping)
	default:
		err = apperr.Validation("conversationId or groupId is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Typing status updated", nil)
}

func (h *MessageHandler) Pin(w http.ResponseWriter, r *http.Request) {
	err := h.messages.Pin(r.Context(), currentUser(r), chi.URLParam(r, "threadId"), chi.URLParam(r, "messageId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Message pinned", nil)
}

func (h *MessageHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	err := h.messages.Unpin(r.Context(), currentUser(r), chi.URLParam(r, "threadId"), chi.URLParam(r, "messageId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Message unpinned", nil)
}

func (h *MessageHandler) Pinned(w http.ResponseWriter, r *http.Request) {
	list, err := h.messages.Pinned(r.Context(), currentUser(r), chi.URLParam(r, "threadId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Pinned messages fetched", list)
}
