// Package auth проверяет выданные учётные данные (HS256 JWT) и загружает пользователя.
// Выдача токенов вне ядра чата; Issue нужен тестам и локальным утилитам.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository"
	"github.com/supportdesk/internal/storage"
)

// Claims: id пользователя в claim "id", jti для отзыва.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

type Users interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	ClearSuspension(ctx context.Context, userID string) error
}

type Gate struct {
	secret []byte
	users  Users
	store  storage.Store
	now    func() time.Time
}

func NewGate(secret string, users Users, store storage.Store) *Gate {
	return &Gate{secret: []byte(secret), users: users, store: store, now: time.Now}
}

// WithClock подменяет часы (для тестов истечения токена и блокировки).
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func (g *Gate) Issue(userID string, ttl time.Duration) (string, error) {
	now := g.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("auth.Issue: %w", err)
	}
	return tok, nil
}

func (g *Gate) parse(credential string) (*Claims, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(g.now),
		// Без exp токен нельзя отозвать: запись об отзыве живёт до истечения токена.
		jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Unauthorized("session expired")
		}
		return nil, apperr.Unauthorized("invalid token")
	}
	if claims.UserID == "" {
		return nil, apperr.Unauthorized("invalid token")
	}
	return claims, nil
}

// Authenticate проверяет токен и возвращает пользователя.
// Истёкшая блокировка снимается до проверки запретов.
func (g *Gate) Authenticate(ctx context.Context, credential string) (*model.User, error) {
	claims, err := g.parse(credential)
	if err != nil {
		return nil, err
	}
	if claims.ID != "" && g.store != nil {
		revoked, err := g.store.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, apperr.Internal("auth.IsRevoked", err)
		}
		if revoked {
			return nil, apperr.Unauthorized("session revoked")
		}
	}
	user, err := g.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("auth.GetUser", err)
	}
	if user.IsSuspended && user.SuspensionExpired(g.now()) {
		if err := g.users.ClearSuspension(ctx, user.ID); err != nil {
			return nil, apperr.Internal("auth.ClearSuspension", err)
		}
		user.IsSuspended = false
		user.SuspensionExpiresAt = nil
	}
	if user.IsBanned {
		return nil, apperr.Forbidden("account is banned")
	}
	if user.IsSuspended {
		return nil, apperr.Forbidden("account is suspended")
	}
	return user, nil
}

// Revoke отзывает токен до его истечения (logout).
func (g *Gate) Revoke(ctx context.Context, credential string) error {
	claims, err := g.parse(credential)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return apperr.Validation("token cannot be revoked")
	}
	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(g.now())
	}
	if err := g.store.Revoke(ctx, claims.ID, ttl); err != nil {
		return apperr.Internal("auth.Revoke", err)
	}
	return nil
}

// BearerToken достаёт токен из заголовка "Authorization: Bearer <token>".
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
