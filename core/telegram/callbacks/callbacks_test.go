package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name        string
		cb          *tele.Callback
		key, payload string
	}{
		{"nil", nil, "", ""},
		{"raw data", &tele.Callback{Data: "\fpost_confirm|abc-123"}, "post_confirm", "abc-123"},
		{"no payload", &tele.Callback{Data: "\fpost_cancel"}, "post_cancel", ""},
		{"unique set by router", &tele.Callback{Unique: "post_edit", Data: "abc-123"}, "post_edit", "abc-123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, payload := Parse(tc.cb)
			if key != tc.key || payload != tc.payload {
				t.Fatalf("Parse() = (%q, %q), want (%q, %q)", key, payload, tc.key, tc.payload)
			}
		})
	}
}
