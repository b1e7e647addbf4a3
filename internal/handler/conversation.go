package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/supportdesk/internal/service"
)

type ConversationHandler struct {
	svc *service.ConversationService
}

func NewConversationHandler(svc *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type createConversationRequest struct {
	RecipientID string `json:"recipientId"`
}

type typingRequest struct {
	ConversationID string `json:"conversationId"`
	GroupID        string `json:"groupId"`
	IsTyping       bool   `json:"isTyping"`
}

type readResponse struct {
	Marked int64 `json:"marked"`
}

// CreateOrJoin: сотрудник открывает или занимает диалог, клиент открывает обращение.
func (h *ConversationHandler) CreateOrJoin(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	conv, err := h.svc.CreateOrJoin(r.Context(), currentUser(r), req.RecipientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Conversation ready", conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Conversations fetched", list)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Get(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Conversation fetched", conv)
}

func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in service.SendInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.svc.SendMessage(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "Message sent", msg)
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkRead(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Conversation marked as read", readResponse{Marked: n})
}

func (h *ConversationHandler) Mute(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Mute(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Conversation muted", conv)
}

func (h *ConversationHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Unmute(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Conversation unmuted", conv)
}

func (h *ConversationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Archive(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Conversation archived", conv)
}

func (h *ConversationHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Typing(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.IsTyping); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Typing status updated", nil)
}

// Release освобождает слот сотрудника, чтобы диалог мог забрать коллега.
func (h *ConversationHandler) Release(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Release(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Conversation released", conv)
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Conversation deleted", nil)
}
