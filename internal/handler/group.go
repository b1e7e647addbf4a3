package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/supportdesk/internal/service"
)

type GroupHandler struct {
	svc *service.GroupService
}

func NewGroupHandler(svc *service.GroupService) *GroupHandler {
	return &GroupHandler{svc: svc}
}

type memberRequest struct {
	UserID string `json:"userId"`
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateGroupInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := h.svc.Create(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "Group created", g)
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Groups fetched", list)
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Get(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Group fetched", g)
}

func (h *GroupHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
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

func (h *GroupHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkRead(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Group marked as read", readResponse{Marked: n})
}

func (h *GroupHandler) Mute(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Mute(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Group muted", g)
}

func (h *GroupHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Unmute(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Group unmuted", g)
}

func (h *GroupHandler) Typing(w http.ResponseWriter, r *http.Request) {
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

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := h.svc.AddMember(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Member added", g)
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.RemoveMember(r.Context(), currentUser(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Member removed", g)
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Group deleted", nil)
}
