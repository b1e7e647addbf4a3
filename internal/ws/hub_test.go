package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/presence"
	"github.com/supportdesk/internal/repository/memory"
	"github.com/supportdesk/internal/service"
	"github.com/supportdesk/internal/ws"
)

type env struct {
	users    *memory.UserRepository
	calls    *memory.CallRepository
	registry *presence.Memory
	convs    *service.ConversationService
	hub      *ws.Hub
	srv      *httptest.Server
}

func newEnv(t *testing.T, cfg ws.Config) *env {
	t.Helper()
	e := &env{
		users:    memory.NewUserRepository(),
		calls:    memory.NewCallRepository(),
		registry: presence.NewMemory(),
	}
	convRepo := memory.NewConversationRepository()
	groupRepo := memory.NewGroupRepository()
	msgRepo := memory.NewMessageRepository()
	orders := memory.NewOrderRepository()
	notifications := service.NewNotificationService(memory.NewNotificationRepository(), e.users, msgRepo, e.calls, orders, e.registry)
	e.convs = service.NewConversationService(convRepo, msgRepo, e.users, orders, notifications, e.registry)
	svc := ws.Services{
		Conversations: e.convs,
		Groups:        service.NewGroupService(groupRepo, msgRepo, e.users, orders, notifications, e.registry),
		Messages:      service.NewMessageService(convRepo, groupRepo, msgRepo, memory.NewPinRepository(msgRepo), e.registry),
		Notifications: notifications,
		Calls:         service.NewCallService(e.calls, groupRepo, e.users, e.registry),
	}
	e.hub = ws.NewHub(e.registry, e.users, svc, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go e.hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := e.users.GetByID(r.Context(), r.URL.Query().Get("user"))
		if err != nil {
			http.Error(w, "unknown user", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cctx, ccancel := context.WithCancel(context.Background())
		client := ws.NewClient(e.hub, conn, u)
		e.hub.Register(client)
		client.Start(cctx, ccancel)
	}))
	t.Cleanup(func() {
		cancel()
		e.srv.Close()
	})
	return e
}

func (e *env) user(t *testing.T, id string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{ID: id, Name: id, Role: role}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return u
}

func (e *env) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireEvent struct {
	Type    model.EventType `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func send(t *testing.T, conn *websocket.Conn, typ model.EventType, ack string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	msg := ws.IncomingMessage{Type: typ, Ack: ack, Payload: raw}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil пропускает события других типов.
func readUntil(t *testing.T, conn *websocket.Conn, typ model.EventType) wireEvent {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	for {
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if ev.Type == typ {
			return ev
		}
	}
}

func readAck(t *testing.T, conn *websocket.Conn, id string) ws.AckPayload {
	t.Helper()
	for {
		ev := readUntil(t, conn, model.EventAck)
		var ack ws.AckPayload
		if err := json.Unmarshal(ev.Payload, &ack); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		if ack.ID == id {
			return ack
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (e *env) waitOnline(t *testing.T, n int) {
	t.Helper()
	waitFor(t, "online users", func() bool { return len(e.registry.Online()) == n })
}

func TestSendMessageOverSocket(t *testing.T) {
	e := newEnv(t, ws.Config{})
	staff := e.user(t, "staff", model.RoleAdmin)
	e.user(t, "cust", model.RoleCustomer)
	conv, err := e.convs.CreateOrJoin(context.Background(), staff, "cust")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	a := e.dial(t, "staff")
	b := e.dial(t, "cust")
	e.waitOnline(t, 2)

	send(t, a, model.EventSendMessage, "m1", service.SendInput{ConversationID: conv.ID, Text: "hello"})
	ack := readAck(t, a, "m1")
	if ack.Status != "success" {
		t.Fatalf("ack status = %q (%s)", ack.Status, ack.Message)
	}

	ev := readUntil(t, b, model.EventReceiveMessage)
	var m model.Message
	if err := json.Unmarshal(ev.Payload, &m); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if m.Text != "hello" || m.SenderID != "staff" {
		t.Fatalf("unexpected message %+v", m)
	}

	unread, ok, err := e.convs.Unread(context.Background(), conv.ID, "cust")
	if err != nil || !ok || unread != 1 {
		t.Fatalf("unread = %d ok=%t err=%v, want 1", unread, ok, err)
	}
}

func TestPresenceIsPersisted(t *testing.T) {
	e := newEnv(t, ws.Config{})
	e.user(t, "u1", model.RoleCustomer)

	conn := e.dial(t, "u1")
	e.waitOnline(t, 1)
	ev := readUntil(t, conn, model.EventOnlineUsers)
	var online []string
	if err := json.Unmarshal(ev.Payload, &online); err != nil {
		t.Fatalf("decode online users: %v", err)
	}
	if len(online) != 1 || online[0] != "u1" {
		t.Fatalf("online-users = %v", online)
	}
	waitFor(t, "is_online=true", func() bool {
		u, _ := e.users.GetByID(context.Background(), "u1")
		return u.IsOnline && u.SocketID != nil
	})

	conn.Close()
	e.waitOnline(t, 0)
	waitFor(t, "is_online=false", func() bool {
		u, _ := e.users.GetByID(context.Background(), "u1")
		return !u.IsOnline && u.SocketID == nil && u.LastSeen != nil
	})
}

func TestErrorsAreAckedOnlyOnRequest(t *testing.T) {
	e := newEnv(t, ws.Config{})
	e.user(t, "u1", model.RoleCustomer)
	conn := e.dial(t, "u1")
	e.waitOnline(t, 1)

	// Без ack ошибка не приходит клиенту; следующий ack доказывает, что ответа не было.
	send(t, conn, "no-such-event", "", map[string]string{})
	send(t, conn, "no-such-event", "a1", map[string]string{})

	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	for {
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Type == model.EventOnlineUsers {
			continue
		}
		if ev.Type != model.EventAck {
			t.Fatalf("unexpected event %s", ev.Type)
		}
		var ack ws.AckPayload
		if err := json.Unmarshal(ev.Payload, &ack); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		if ack.ID != "a1" {
			t.Fatalf("got ack for %q, want only a1", ack.ID)
		}
		if ack.Status != "error" || !strings.Contains(ack.Message, "unknown event type") {
			t.Fatalf("unexpected ack %+v", ack)
		}
		return
	}
}

func TestReconnectEvictsStaleConnection(t *testing.T) {
	e := newEnv(t, ws.Config{})
	e.user(t, "u1", model.RoleCustomer)

	first := e.dial(t, "u1")
	e.waitOnline(t, 1)
	c1, _ := e.registry.Lookup("u1")

	second := e.dial(t, "u1")
	waitFor(t, "new connection registered", func() bool {
		c2, ok := e.registry.Lookup("u1")
		return ok && c2.Handle() != c1.Handle()
	})

	if err := first.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	// Закрытие вытесненного соединения не снимает пользователя с онлайна.
	time.Sleep(50 * time.Millisecond)
	if online := e.registry.Online(); len(online) != 1 {
		t.Fatalf("online = %v, want [u1]", online)
	}
	send(t, second, model.EventUserOnline, "x", map[string]string{})
	if ack := readAck(t, second, "x"); ack.Status != "success" {
		t.Fatalf("second connection not served: %+v", ack)
	}
}

func TestDisconnectEndsActiveCall(t *testing.T) {
	e := newEnv(t, ws.Config{})
	e.user(t, "a", model.RoleAdmin)
	e.user(t, "b", model.RoleCustomer)
	a := e.dial(t, "a")
	b := e.dial(t, "b")
	e.waitOnline(t, 2)

	send(t, a, model.EventStartCall, "c1", service.StartCallInput{ReceiverID: "b", Media: model.CallVideo})
	ack := readAck(t, a, "c1")
	if ack.Status != "success" {
		t.Fatalf("start-call failed: %s", ack.Message)
	}
	ev := readUntil(t, b, model.EventIncomingCall)
	var call model.Call
	if err := json.Unmarshal(ev.Payload, &call); err != nil {
		t.Fatalf("decode call: %v", err)
	}

	b.Close()
	waitFor(t, "call ended by disconnect", func() bool {
		c, err := e.calls.GetByID(context.Background(), call.ID)
		return err == nil && c.Status == model.CallEnded && c.EndReason != nil && *c.EndReason == model.EndNetworkIssue
	})
	readUntil(t, a, model.EventCallEnded)
}

func TestInboundRateLimit(t *testing.T) {
	e := newEnv(t, ws.Config{EventRate: 0.001, EventBurst: 1})
	e.user(t, "u1", model.RoleCustomer)
	conn := e.dial(t, "u1")
	e.waitOnline(t, 1)

	send(t, conn, model.EventUserOnline, "1", map[string]string{})
	send(t, conn, model.EventUserOnline, "2", map[string]string{})

	if ack := readAck(t, conn, "1"); ack.Status != "success" {
		t.Fatalf("first event rejected: %+v", ack)
	}
	ack := readAck(t, conn, "2")
	if ack.Status != "error" || !strings.Contains(ack.Message, "too many events") {
		t.Fatalf("second event not limited: %+v", ack)
	}
}

func TestConnectionLimit(t *testing.T) {
	e := newEnv(t, ws.Config{MaxConns: 1})
	e.user(t, "u1", model.RoleCustomer)
	e.user(t, "u2", model.RoleCustomer)

	e.dial(t, "u1")
	e.waitOnline(t, 1)
	rejected := e.dial(t, "u2")

	if err := rejected.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	for {
		if _, _, err := rejected.ReadMessage(); err != nil {
			break
		}
	}
	if online := e.registry.Online(); len(online) != 1 || online[0] != "u1" {
		t.Fatalf("online = %v, want [u1]", online)
	}
}

// Соединение, оборвавшееся до того, как хаб принял регистрацию, не должно остаться онлайн.
func TestConnectionClosedBeforeRegisterStaysOffline(t *testing.T) {
	e := newEnv(t, ws.Config{})
	ghost := e.user(t, "ghost", model.RoleCustomer)
	e.user(t, "live", model.RoleCustomer)

	dropped := make(chan struct{})
	registered := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		client := ws.NewClient(e.hub, conn, ghost)
		client.Start(ctx, cancel)
		<-dropped
		client.Wait()
		e.hub.Register(client)
		close(registered)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
	close(dropped)
	select {
	case <-registered:
	case <-time.After(3 * time.Second):
		t.Fatalf("late register did not happen")
	}

	// Регистрации обрабатываются по порядку: когда live онлайн, ghost уже обработан.
	e.dial(t, "live")
	e.waitOnline(t, 1)
	if _, ok := e.registry.Lookup("ghost"); ok {
		t.Fatalf("closed connection registered as online: %v", e.registry.Online())
	}
	u, err := e.users.GetByID(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("get ghost: %v", err)
	}
	if u.IsOnline {
		t.Fatalf("closed connection persisted as online")
	}
}
