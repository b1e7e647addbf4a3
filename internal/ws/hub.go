package ws

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/presence"
	"github.com/supportdesk/internal/service"
)

const storeTimeout = 5 * time.Second

var errRateLimited = apperr.RateLimited("too many events, slow down")

// PresenceStore сохраняет is_online/socket_id/last_seen пользователя.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, online bool, socketID *string) error
}

// Services: бизнес-логика, к которой обращаются события клиента.
type Services struct {
	Conversations *service.ConversationService
	Groups        *service.GroupService
	Messages      *service.MessageService
	Notifications *service.NotificationService
	Calls         *service.CallService
}

type Config struct {
	MaxConns   int
	EventRate  rate.Limit
	EventBurst int
}

type Hub struct {
	cfg        Config
	registry   presence.Registry
	users      PresenceStore
	svc        Services
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(registry presence.Registry, users PresenceStore, svc Services, cfg Config) *Hub {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10000
	}
	if cfg.EventRate <= 0 {
		cfg.EventRate = 20
	}
	if cfg.EventBurst <= 0 {
		cfg.EventBurst = 40
	}
	return &Hub{
		cfg:        cfg,
		registry:   registry,
		users:      users,
		svc:        svc,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

// Run обрабатывает подключения и отключения последовательно; clients принадлежит только этой горутине.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// done закрывается до ожидания клиентов, иначе их Unregister заблокируется.
			close(h.done)
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
		h.registry.Unregister(c.handle)
	}
	h.clients = make(map[*Client]struct{})

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	// Соединение оборвалось раньше, чем хаб его принял; его Unregister уже проигнорирован.
	if c.Closed() {
		logger.Debugf("ws skip register of closed connection user=%s", c.user.ID)
		return
	}
	if len(h.clients) >= h.cfg.MaxConns {
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.cfg.MaxConns, c.user.ID)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}

	// Повторное подключение вытесняет старое соединение пользователя.
	if old := h.registry.Register(c.user.ID, c); old != nil {
		logger.Infof("ws reconnect user=%s, closing stale connection %s", c.user.ID, old.Handle())
		old.Close()
	}

	h.persistPresence(c.user.ID, true, &c.handle)
	h.broadcastOnline()
}

func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.Close()

	userID, ok := h.registry.Unregister(c.handle)
	if !ok {
		// Соединение уже вытеснено новым; пользователь остаётся онлайн.
		return
	}
	h.persistPresence(userID, false, nil)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	h.svc.Calls.HandleDisconnect(ctx, userID)

	h.broadcastOnline()
}

func (h *Hub) persistPresence(userID string, online bool, socketID *string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.users.SetPresence(ctx, userID, online, socketID); err != nil {
		logger.Errorf("ws set presence user=%s online=%t: %v", userID, online, err)
	}
}

func (h *Hub) broadcastOnline() {
	h.registry.Broadcast(model.Event{Type: model.EventOnlineUsers, Payload: h.registry.Online()})
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws."+string(msg.Type), time.Now())()

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var (
		data any
		err  error
	)
	switch msg.Type {
	case model.EventUserOnline:
		data = h.registry.Online()
		c.Push(model.Event{Type: model.EventOnlineUsers, Payload: data})
	case model.EventSendMessage:
		data, err = h.handleSendMessage(ctx, c, msg.Payload)
	case model.EventTyping:
		err = h.handleTyping(ctx, c, msg.Payload)
	case model.EventMarkAsRead:
		data, err = h.handleMarkRead(ctx, c, msg.Payload)
	case model.EventStartCall:
		data, err = h.handleStartCall(ctx, c, msg.Payload)
	case model.EventEndCall, model.EventMissedCall, model.EventJoinGroupCall, model.EventLeaveGroupCall:
		data, err = h.handleCallAction(ctx, c, msg.Type, msg.Payload)
	case model.EventCallSignal:
		data, err = h.handleSignal(ctx, c, msg.Payload)
	case model.EventSendNotification:
		data, err = h.handleRelay(ctx, c, msg.Payload)
	default:
		err = apperr.Validationf("unknown event type %q", msg.Type)
	}
	h.reply(c, msg, data, err)
}

// reply логирует ошибку и, если клиент указал ack, отвечает ему. Без ack ошибка остаётся на сервере.
func (h *Hub) reply(c *Client, msg IncomingMessage, data any, err error) {
	if err != nil {
		if apperr.Is(err, apperr.KindInternal) {
			logger.Errorf("ws %s user=%s: %v", msg.Type, c.user.ID, err)
		} else {
			logger.Debugf("ws %s user=%s rejected: %v", msg.Type, c.user.ID, err)
		}
	}
	if msg.Ack == "" {
		return
	}
	ack := AckPayload{ID: msg.Ack, Status: ackSuccess, Data: data}
	if err != nil {
		ack = AckPayload{ID: msg.Ack, Status: ackError, Message: apperr.Message(err)}
	}
	c.Push(model.Event{Type: model.EventAck, Payload: ack})
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return apperr.Validation("payload is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Validation("malformed payload")
	}
	return nil
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
	var in sendMessageRequest
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	if in.GroupID != "" {
		return h.svc.Groups.SendMessage(ctx, c.user, in)
	}
	if in.ConversationID == "" {
		return nil, apperr.Validation("conversationId or groupId is required")
	}
	return h.svc.Conversations.SendMessage(ctx, c.user, in)
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, raw json.RawMessage) error {
	var in typingRequest
	if err := decode(raw, &in); err != nil {
		return err
	}
	switch {
	case in.GroupID != "":
		return h.svc.Groups.Typing(ctx, c.user, in.GroupID, in.IsTyping)
	case in.ConversationID != "":
		return h.svc.Conversations.Typing(ctx, c.user, in.ConversationID, in.IsTyping)
	default:
		return apperr.Validation("conversationId or groupId is required")
	}
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
	var in markReadRequest
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	var (
		n   int64
		err error
	)
	switch {
	case in.MessageID != "":
		return h.svc.Messages.MarkRead(ctx, c.user, in.MessageID)
	case in.GroupID != "":
		n, err = h.svc.Groups.MarkRead(ctx, c.user, in.GroupID)
	case in.ConversationID != "":
		n, err = h.svc.Conversations.MarkRead(ctx, c.user, in.ConversationID)
	default:
		return nil, apperr.Validation("conversationId, groupId or messageId is required")
	}
	if err != nil {
		return nil, err
	}
	return readResult{Marked: n}, nil
}

func (h *Hub) handleStartCall(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
	var in service.StartCallInput
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	return h.svc.Calls.Start(ctx, c.user, in)
}

func (h *Hub) handleCallAction(ctx context.Context, c *Client, typ model.EventType, raw json.RawMessage) (any, error) {
	var in callRequest
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	if in.CallID == "" {
		return nil, apperr.Validation("callId is required")
	}
	switch typ {
	case model.EventEndCall:
		return h.svc.Calls.End(ctx, c.user, in.CallID, in.Reason)
	case model.EventMissedCall:
		return h.svc.Calls.Missed(ctx, c.user, in.CallID)
	case model.EventJoinGroupCall:
		return h.svc.Calls.Join(ctx, c.user, in.CallID)
	default:
		return h.svc.Calls.Leave(ctx, c.user, in.CallID)
	}
}

func (h *Hub) handleSignal(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
	var in service.SignalInput
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	ok, err := h.svc.Calls.Signal(ctx, c.user, in)
	if err != nil {
		return nil, err
	}
	return signalResult{Delivered: ok}, nil
}

func (h *Hub) handleRelay(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
	var in relayRequest
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	if len(in.Recipients) == 0 {
		return nil, apperr.Validation("recipients are required")
	}
	return relayResult{Delivered: h.svc.Notifications.Relay(ctx, c.user, in.Recipients, in.Payload)}, nil
}

// Register ставит клиента в очередь на подключение; после остановки хаба клиент сразу закрывается.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
