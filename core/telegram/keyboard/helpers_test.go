package keyboard

import "testing"

func TestInlineRows(t *testing.T) {
	m := InlineRows(
		[]InlineBtn{{Text: "Post", Unique: "post_confirm", Data: "id1"}, {Text: "Edit", Unique: "post_edit", Data: "id1"}},
		nil,
		[]InlineBtn{{Text: "Cancel", Unique: "post_cancel", Data: "id1"}},
	)
	if len(m.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.InlineKeyboard))
	}
	if got := len(m.InlineKeyboard[0]); got != 2 {
		t.Fatalf("first row = %d buttons, want 2", got)
	}
	btn := m.InlineKeyboard[0][0]
	if btn.Unique != "post_confirm" || btn.Data != "id1" || btn.Text != "Post" {
		t.Fatalf("unexpected button: %+v", btn)
	}
}

func TestInlineColumn(t *testing.T) {
	m := InlineColumn(InlineBtn{Text: "a", Unique: "a"}, InlineBtn{Text: "b", Unique: "b"})
	if len(m.InlineKeyboard) != 2 || len(m.InlineKeyboard[1]) != 1 {
		t.Fatalf("unexpected layout: %+v", m.InlineKeyboard)
	}
}
