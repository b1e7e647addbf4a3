package middleware

import (
	"context"

	"github.com/supportdesk/internal/model"
)

type contextKey string

const userKey contextKey = "user"

// WithUser кладёт проверенного пользователя в контекст (используется Authenticate и тестами).
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFrom возвращает пользователя из контекста или nil.
func UserFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}

// GetUserID возвращает id пользователя из контекста (пустая строка для анонимного запроса).
func GetUserID(ctx context.Context) string {
	if u := UserFrom(ctx); u != nil {
		return u.ID
	}
	return ""
}
