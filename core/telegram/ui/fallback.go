// Package ui holds the replies sent for updates no handler claims.
package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider exposes handlers used when an update cannot be mapped to
// a command, callback or active dialog.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

// Fallbacks is a FallbackProvider answering with fixed texts.
// Empty texts make the matching handler a no-op.
type Fallbacks struct {
	Text     string
	Document string
	Callback string
}

func reply(text string) tele.HandlerFunc {
	return func(c tele.Context) error {
		if text == "" {
			return nil
		}
		return c.Send(text)
	}
}

// UnknownText answers free text outside any dialog.
func (f Fallbacks) UnknownText() tele.HandlerFunc { return reply(f.Text) }

// UnknownDocument answers files and media the bot does not accept.
func (f Fallbacks) UnknownDocument() tele.HandlerFunc { return reply(f.Document) }

// UnknownCallback answers presses on buttons nobody handles.
func (f Fallbacks) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: f.Callback})
	}
}
