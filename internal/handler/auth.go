package handler

import (
	"context"
	"net/http"

	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/middleware"
)

// Revoker отзывает токен; реализуется auth.Gate.
type Revoker interface {
	Revoke(ctx context.Context, credential string) error
}

type AuthHandler struct {
	gate Revoker
}

func NewAuthHandler(gate Revoker) *AuthHandler {
	return &AuthHandler{gate: gate}
}

// Logout отзывает текущий токен; повторный запрос с ним получит 401.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.Credential(r)
	if err := h.gate.Revoke(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	logger.Infof("logout user=%s token=%s", middleware.GetUserID(r.Context()), middleware.MaskToken(token))
	writeOK(w, "Logged out", nil)
}
