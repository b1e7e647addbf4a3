package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/supportdesk/internal/service"
)

type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type countResponse struct {
	Count int64 `json:"count"`
}

// Raise создаёт произвольное уведомление; маршрут доступен только сотрудникам.
func (h *NotificationHandler) Raise(w http.ResponseWriter, r *http.Request) {
	var in service.RaiseInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Actor = currentUser(r).ID
	list, err := h.svc.Raise(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "Notification sent", list)
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Notifications fetched", list)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkRead(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Notification marked as read", nil)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkAllRead(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "All notifications marked as read", countResponse{Count: n})
}

func (h *NotificationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Decline(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Request declined", nil)
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Notification deleted", nil)
}

func (h *NotificationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteAll(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "All notifications deleted", countResponse{Count: n})
}

type newMessageRequest struct {
	MessageID string `json:"messageId"`
}

func (h *NotificationHandler) NewMessage(w http.ResponseWriter, r *http.Request) {
	var req newMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.NotifyNewMessage(r.Context(), currentUser(r), req.MessageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "Notification sent", list)
}

type newCallRequest struct {
	CallID string `json:"callId"`
}

func (h *NotificationHandler) NewCall(w http.ResponseWriter, r *http.Request) {
	var req newCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.NotifyNewCall(r.Context(), currentUser(r), req.CallID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "Notification sent", list)
}

type orderUpdateRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (h *NotificationHandler) OrderUpdate(w http.ResponseWriter, r *http.Request) {
	var req orderUpdateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.NotifyOrderUpdate(r.Context(), currentUser(r), req.OrderID, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "Notification sent", list)
}
