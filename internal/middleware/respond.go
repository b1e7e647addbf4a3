package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/logger"
)

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Status: "error", Message: msg}); err != nil {
		logger.Errorf("middleware write error: %v", err)
	}
}

func writeAppError(w http.ResponseWriter, err error) {
	if apperr.Is(err, apperr.KindInternal) {
		logger.Errorf("middleware: %v", err)
	}
	writeError(w, apperr.HTTPStatus(err), apperr.Message(err))
}
