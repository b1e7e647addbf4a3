package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/middleware"
	"github.com/supportdesk/internal/model"
)

type successResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeOK(w http.ResponseWriter, msg string, data any) {
	writeJSON(w, http.StatusOK, successResponse{Status: "success", Message: msg, Data: data})
}

func writeCreated(w http.ResponseWriter, msg string, data any) {
	writeJSON(w, http.StatusCreated, successResponse{Status: "success", Message: msg, Data: data})
}

// writeError отдаёт клиенту безопасный текст ошибки; внутренние ошибки только логируются.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.Is(err, apperr.KindInternal) {
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, apperr.HTTPStatus(err), errorResponse{Status: "error", Message: apperr.Message(err)})
}

// decode читает JSON-тело запроса.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

// decodeOptional: как decode, но пустое тело не считается ошибкой.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func currentUser(r *http.Request) *model.User {
	return middleware.UserFrom(r.Context())
}
