package middleware

import (
	"context"
	"net/http"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/auth"
	"github.com/supportdesk/internal/model"
)

// Authenticator проверяет токен и возвращает пользователя; реализуется auth.Gate.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*model.User, error)
}

// Credential берёт токен из "Authorization: Bearer", а для WebSocket upgrade ещё и из ?token=.
func Credential(r *http.Request) string {
	if tok := auth.BearerToken(r.Header.Get("Authorization")); tok != "" {
		return tok
	}
	return r.URL.Query().Get("token")
}

// Authenticate пропускает запрос дальше только с действующим токеном; пользователь кладётся в контекст.
func Authenticate(gate Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := gate.Authenticate(r.Context(), Credential(r))
			if err != nil {
				writeAppError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireStaff: только модераторы и администраторы.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFrom(r.Context())
		if u == nil {
			writeAppError(w, apperr.Unauthorized("authentication required"))
			return
		}
		if !u.IsStaff() {
			writeAppError(w, apperr.Forbidden("staff only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
