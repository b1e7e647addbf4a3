// Package presence хранит соответствие «пользователь → активное соединение».
// Данные живут только в памяти процесса и теряются при перезапуске.
package presence

import (
	"sort"
	"sync"

	"github.com/supportdesk/internal/model"
)

// Conn: соединение, в которое можно доставить событие.
type Conn interface {
	Handle() string
	UserID() string
	// Push ставит событие в очередь отправки; false, если соединение не успевает.
	Push(ev model.Event) bool
	Close()
}

type Registry interface {
	// Register привязывает соединение к пользователю и возвращает вытесненное старое (или nil).
	Register(userID string, c Conn) (evicted Conn)
	// Unregister снимает привязку по handle; вытесненный handle даёт ok=false.
	Unregister(handle string) (userID string, ok bool)
	Lookup(userID string) (Conn, bool)
	Online() []string
	Broadcast(ev model.Event)
	Send(userID string, ev model.Event) bool
}

type Memory struct {
	mu       sync.RWMutex
	byUser   map[string]Conn
	byHandle map[string]string
}

var _ Registry = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{byUser: make(map[string]Conn), byHandle: make(map[string]string)}
}

func (m *Memory) Register(userID string, c Conn) Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.byUser[userID]
	if ok && old.Handle() == c.Handle() {
		return nil
	}
	if ok {
		delete(m.byHandle, old.Handle())
	}
	m.byUser[userID] = c
	m.byHandle[c.Handle()] = userID
	if ok {
		return old
	}
	return nil
}

func (m *Memory) Unregister(handle string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.byHandle[handle]
	if !ok {
		return "", false
	}
	delete(m.byHandle, handle)
	if c, ok := m.byUser[userID]; ok && c.Handle() == handle {
		delete(m.byUser, userID)
	}
	return userID, true
}

func (m *Memory) Lookup(userID string) (Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byUser[userID]
	return c, ok
}

// Online возвращает отсортированный список пользователей онлайн.
func (m *Memory) Online() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.byUser))
	for id := range m.byUser {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (m *Memory) Broadcast(ev model.Event) {
	m.mu.RLock()
	conns := make([]Conn, 0, len(m.byUser))
	for _, c := range m.byUser {
		conns = append(conns, c)
	}
	m.mu.RUnlock()
	for _, c := range conns {
		c.Push(ev)
	}
}

// Send доставляет событие, если пользователь онлайн. Офлайн событие теряется.
func (m *Memory) Send(userID string, ev model.Event) bool {
	c, ok := m.Lookup(userID)
	if !ok {
		return false
	}
	return c.Push(ev)
}
