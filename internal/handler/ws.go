package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	allowedOrigins string
	upgrader       websocket.Upgrader
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins — как в CORS (через запятую или "*").
func NewWSHandler(hub *ws.Hub, allowedOrigins string) *WSHandler {
	h := &WSHandler{hub: hub, allowedOrigins: strings.TrimSpace(allowedOrigins)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS поднимает соединение для пользователя, уже проверенного middleware.Authenticate.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		writeError(w, r, apperr.Unauthorized("authentication required"))
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, r, apperr.Forbidden("origin not allowed"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade user=%s: %v", user.ID, err)
		return
	}

	// Контекст соединения не зависит от запроса: он завершается вместе с обработчиком.
	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, user)
	// Регистрация до запуска насосов: Unregister не может обогнать Register.
	h.hub.Register(client)
	client.Start(ctx, cancel)
}
