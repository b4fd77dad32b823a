package state

import (
	"log/slog"
	"maps"
	"sync"

	"github.com/m3rciful/instarepost/core/logger"
	tghelpers "github.com/m3rciful/instarepost/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session

	handlersMu sync.RWMutex
	handlers   map[State]tele.HandlerFunc
}

// NewMemoryManager returns a Manager that keeps sessions in process memory.
// Sessions are lost on restart.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]*Session),
		handlers: make(map[State]tele.HandlerFunc),
	}
}

func (m *memoryManager) session(chatID int64) *Session {
	s, ok := m.sessions[chatID]
	if !ok {
		s = &Session{State: StateIdle, TempData: make(map[string]any)}
		m.sessions[chatID] = s
	}
	return s
}

// Get returns a copy of the chat's session; unknown chats are idle.
func (m *memoryManager) Get(chatID int64) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[chatID]
	if !ok {
		return Session{State: StateIdle, TempData: map[string]any{}}
	}
	return Session{State: s.State, TempData: maps.Clone(s.TempData)}
}

func (m *memoryManager) SetState(chatID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session(chatID).State = st
}

func (m *memoryManager) GetState(chatID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[chatID]; ok {
		return s.State
	}
	return StateIdle
}

func (m *memoryManager) SetTemp(chatID int64, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session(chatID).TempData[key] = value
}

func (m *memoryManager) GetTemp(chatID int64, key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[chatID]
	if !ok {
		return nil, false
	}
	v, ok := s.TempData[key]
	return v, ok
}

func (m *memoryManager) GetTempString(chatID int64, key string) (string, bool) {
	v, ok := m.GetTemp(chatID, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (m *memoryManager) ClearTemp(chatID int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok {
		delete(s.TempData, key)
	}
}

// Clear drops the chat's session, returning it to idle.
func (m *memoryManager) Clear(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
}

// Len reports how many chats have a session.
func (m *memoryManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RegisterHandler routes updates of chats in step st to h.
func (m *memoryManager) RegisterHandler(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[st] = h
}

// InProgress reports whether the chat is in a step other than idle.
func (m *memoryManager) InProgress(chatID int64) bool {
	return m.GetState(chatID) != StateIdle
}

// ManagerHandler runs the handler registered for the chat's current step.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	current := m.GetState(chat.ID)
	ctx := tghelpers.BuildContext(c)

	m.handlersMu.RLock()
	h, ok := m.handlers[current]
	m.handlersMu.RUnlock()

	logger.Debug(ctx, "tg", "fsm.dispatch",
		slog.String("step", string(current)),
		slog.Bool("handled", ok),
	)
	if !ok {
		return nil
	}
	return h(c)
}
