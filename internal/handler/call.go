package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/service"
)

type CallHandler struct {
	svc *service.CallService
}

func NewCallHandler(svc *service.CallService) *CallHandler {
	return &CallHandler{svc: svc}
}

type endCallRequest struct {
	Reason model.EndReason `json:"reason"`
}

func (h *CallHandler) Start(w http.ResponseWriter, r *http.Request) {
	var in service.StartCallInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	call, err := h.svc.Start(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "Call started", call)
}

func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	call, err := h.svc.Get(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Call fetched", call)
}

func (h *CallHandler) Active(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Active(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Active calls fetched", list)
}

func (h *CallHandler) History(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.History(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Call history fetched", list)
}

// End: тело с reason необязательно, по умолчанию completed.
func (h *CallHandler) End(w http.ResponseWriter, r *http.Request) {
	var req endCallRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	call, err := h.svc.End(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Call ended", call)
}

func (h *CallHandler) Missed(w http.ResponseWriter, r *http.Request) {
	call, err := h.svc.Missed(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Call marked as missed", call)
}

func (h *CallHandler) Join(w http.ResponseWriter, r *http.Request) {
	call, err := h.svc.Join(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Joined call", call)
}

func (h *CallHandler) Leave(w http.ResponseWriter, r *http.Request) {
	call, err := h.svc.Leave(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Left call", call)
}
