// Package callbacks decodes inline button callback data.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse splits telebot's "\f<unique>|<payload>" encoding into its parts.
// The payload may be empty.
func Parse(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	key, payload, _ := strings.Cut(raw, "|")
	key = strings.TrimSpace(key)
	if cb.Unique != "" {
		key = cb.Unique
		if !strings.HasPrefix(cb.Data, "\f") {
			payload = cb.Data
		}
	}
	return key, payload
}

// Key returns the unique key of the callback carried by c.
func Key(c tele.Context) string {
	key, _ := Parse(c.Callback())
	return key
}

// Payload returns the callback payload carried by c.
func Payload(c tele.Context) string {
	_, payload := Parse(c.Callback())
	return strings.TrimSpace(payload)
}
