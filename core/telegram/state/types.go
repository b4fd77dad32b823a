package state

import tele "gopkg.in/telebot.v4"

// State identifies a dialog step.
type State string

// StateIdle means no dialog is active in the chat.
const StateIdle State = "idle"

// Session is a snapshot of one chat's dialog.
type Session struct {
	State    State
	TempData map[string]any
}

// Manager stores dialog sessions keyed by chat ID.
type Manager interface {
	Get(chatID int64) Session
	SetState(chatID int64, st State)
	GetState(chatID int64) State
	SetTemp(chatID int64, key string, value any)
	GetTemp(chatID int64, key string) (any, bool)
	GetTempString(chatID int64, key string) (string, bool)
	ClearTemp(chatID int64, key string)
	Clear(chatID int64)
	Len() int

	RegisterHandler(st State, h tele.HandlerFunc)
	InProgress(chatID int64) bool
	ManagerHandler(c tele.Context) error
}
