package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/supportdesk/internal/config"
	"github.com/supportdesk/internal/middleware"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/service"
	"github.com/supportdesk/internal/storage"
	"github.com/supportdesk/internal/ws"
)

// Gate: проверка и отзыв токенов (auth.Gate).
type Gate interface {
	Authenticate(ctx context.Context, credential string) (*model.User, error)
	Revoke(ctx context.Context, credential string) error
}

// Deps собирает всё, что нужно HTTP-слою.
type Deps struct {
	Config        *config.Config
	Gate          Gate
	Store         storage.Store
	Hub           *ws.Hub
	Conversations *service.ConversationService
	Groups        *service.GroupService
	Messages      *service.MessageService
	Notifications *service.NotificationService
	Calls         *service.CallService
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// NewRouter регистрирует REST API, /ws и /health.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	convH := NewConversationHandler(d.Conversations)
	groupH := NewGroupHandler(d.Groups)
	msgH := NewMessageHandler(d.Messages, d.Conversations, d.Groups)
	notifH := NewNotificationHandler(d.Notifications)
	callH := NewCallHandler(d.Calls)
	configH := NewConfigHandler(cfg)
	authH := NewAuthHandler(d.Gate)
	wsH := NewWSHandler(d.Hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		compressed := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimit(d.Store, middleware.RateLimitConfig{PerIP: cfg.RateLimit.PerIP, Window: cfg.RateLimit.Window}))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/config/call", configH.GetCallConfig)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Gate))
		r.Use(middleware.RateLimit(d.Store, middleware.RateLimitConfig{PerUser: cfg.RateLimit.PerUser, Window: cfg.RateLimit.Window}))

		r.Get("/ws", wsH.ServeWS)
		r.Post("/api/auth/logout", authH.Logout)

		r.Route("/api/conversations", func(r chi.Router) {
			r.Post("/", convH.CreateOrJoin)
			r.Get("/", convH.List)
			r.Post("/message", convH.SendMessage)
			r.Get("/{id}", convH.Get)
			r.Put("/{id}/read", convH.MarkRead)
			r.Put("/{id}/mute", convH.Mute)
			r.Put("/{id}/unmute", convH.Unmute)
			r.Put("/{id}/archive", convH.Archive)
			r.Put("/{id}/typing", convH.Typing)
			r.Put("/{id}/release", convH.Release)
			r.Delete("/{id}", convH.Delete)
		})

		r.Route("/api/group-conversations", func(r chi.Router) {
			r.Post("/", groupH.Create)
			r.Get("/", groupH.List)
			r.Post("/message", groupH.SendMessage)
			r.Get("/{id}", groupH.Get)
			r.Put("/{id}/read", groupH.MarkRead)
			r.Put("/{id}/mute", groupH.Mute)
			r.Put("/{id}/unmute", groupH.Unmute)
			r.Put("/{id}/typing", groupH.Typing)
			r.Post("/{id}/members", groupH.AddMember)
			r.Delete("/{id}/members/{userId}", groupH.RemoveMember)
			r.Delete("/{id}", groupH.Delete)
		})

		r.Route("/api/messages", func(r chi.Router) {
			r.Put("/typing", msgH.Typing)
			r.Get("/{threadId}", msgH.List)
			r.Delete("/{messageId}", msgH.Delete)
			r.Put("/{messageId}/read", msgH.MarkRead)
			r.Get("/{threadId}/pins", msgH.Pinned)
			r.Post("/{threadId}/pins/{messageId}", msgH.Pin)
			r.Delete("/{threadId}/pins/{messageId}", msgH.Unpin)
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.With(middleware.RequireStaff).Post("/", notifH.Raise)
			r.Get("/", notifH.List)
			r.Put("/mark-all-read", notifH.MarkAllRead)
			r.Delete("/delete-all", notifH.DeleteAll)
			r.Post("/new-message", notifH.NewMessage)
			r.Post("/new-call", notifH.NewCall)
			r.Post("/order-update", notifH.OrderUpdate)
			r.Put("/{id}/read", notifH.MarkRead)
			r.Put("/{id}/decline", notifH.Decline)
			r.Delete("/{id}", notifH.Delete)
		})

		r.Route("/api/calls", func(r chi.Router) {
			r.Post("/", callH.Start)
			r.Get("/active", callH.Active)
			r.Get("/history", callH.History)
			r.Get("/{id}", callH.Get)
			r.Put("/{id}/end", callH.End)
			r.Put("/{id}/missed", callH.Missed)
			r.Put("/{id}/join", callH.Join)
			r.Put("/{id}/leave", callH.Leave)
		})
	})

	return r
}
