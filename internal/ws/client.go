package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufSize    = 256
)

// bufPool pools bytes.Buffer for JSON encoding in the hot-path (writePump).
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client represents a single WebSocket connection.
// Lifecycle: NewClient -> Hub.Register -> Start(ctx, cancel) -> [ReadPump, WritePump] -> Close -> Wait.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan model.Event
	user    *model.User
	handle  string
	limiter *rate.Limiter

	// done is used as a non-blocking guard in Push.
	done chan struct{}
	// cancel cancels the context passed to Start, triggering pump shutdown.
	// Guarded by mu: the hub may Close a client before Start runs.
	mu     sync.Mutex
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

var _ presence.Conn = (*Client)(nil)

// NewClient готовит клиента; Start обязателен, иначе Wait не вернётся.
func NewClient(hub *Hub, conn *websocket.Conn, user *model.User) *Client {
	c := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan model.Event, sendBufSize),
		user:    user,
		handle:  uuid.NewString(),
		limiter: rate.NewLimiter(hub.cfg.EventRate, hub.cfg.EventBurst),
		done:    make(chan struct{}),
	}
	// Счётчик насосов взводится здесь: хаб может ждать клиента до его Start.
	c.wg.Add(2)
	return c
}

// Handle: идентификатор соединения, сохраняется как socket_id.
func (c *Client) Handle() string { return c.handle }

func (c *Client) UserID() string { return c.user.ID }

// Push кладёт событие в буфер отправки без блокировки. Переполненный буфер закрывает клиента.
func (c *Client) Push(ev model.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	case <-c.done:
		return false
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.user.ID)
		c.Close()
		return false
	}
}

// Start launches ReadPump and WritePump goroutines with controlled lifecycle.
// ctx controls pump lifetime; cancel is stored for Close().
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancel = cancel
	closed := c.Closed()
	c.mu.Unlock()
	if closed {
		cancel()
	}
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait blocks until both pump goroutines have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Closed сообщает, что клиент уже остановлен.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close signals the client to stop. Safe to call multiple times from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		close(c.done)
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		// Close до Unregister: хаб по done отличает уже мёртвого клиента.
		c.Close()
		c.hub.Unregister(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws set read deadline user=%s: %v", c.user.ID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read error user=%s: %v", c.user.ID, err)
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Errorf("ws unmarshal error user=%s: %v", c.user.ID, err)
			c.Push(model.Event{Type: model.EventError, Payload: "malformed event"})
			continue
		}
		if !c.limiter.Allow() {
			c.hub.reply(c, msg, nil, errRateLimited)
			continue
		}

		c.hub.HandleMessage(ctx, c, msg)
	}
}

func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case ev := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.user.ID, err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			if err := json.NewEncoder(buf).Encode(ev); err != nil {
				bufPool.Put(buf)
				logger.Errorf("ws marshal error user=%s event=%s: %v", c.user.ID, ev.Type, err)
				continue
			}
			data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
			writeErr := c.conn.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.user.ID, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
