package router

import (
	"testing"

	tg "github.com/m3rciful/instarepost/core/telegram"
	"github.com/m3rciful/instarepost/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func textContext(t *testing.T, text string) tele.Context {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return bot.NewContext(tele.Update{ID: 1, Message: &tele.Message{
		ID:   1,
		Text: text,
		Chat: &tele.Chat{ID: 42},
	}})
}

func TestTextRoutesPlainWordIsNotCommand(t *testing.T) {
	var ran, fell []string
	reg := tg.NewRegistry()
	for _, name := range []string{"/cancel", "/start"} {
		reg.RegisterCommand(name, commands.Command{Description: "d", Handler: func(tele.Context) error {
			ran = append(ran, name)
			return nil
		}})
	}
	reg.SetTextFallback(func(c tele.Context) error {
		fell = append(fell, c.Text())
		return nil
	})

	var text tele.HandlerFunc
	for _, r := range TextRoutes(nil, reg, TextOptions{}) {
		if r.Endpoint == tele.OnText {
			text = r.Handler
		}
	}
	if text == nil {
		t.Fatal("no OnText route")
	}

	for _, msg := range []string{"cancel", "start", " Cancel ", "/cancel", "/start@instarepost_bot", "/start now"} {
		if err := text(textContext(t, msg)); err != nil {
			t.Fatalf("handle %q: %v", msg, err)
		}
	}

	wantRan := []string{"/cancel", "/start", "/start"}
	if len(ran) != len(wantRan) {
		t.Fatalf("commands ran %v, want %v", ran, wantRan)
	}
	for i := range wantRan {
		if ran[i] != wantRan[i] {
			t.Fatalf("commands ran %v, want %v", ran, wantRan)
		}
	}
	if len(fell) != 3 {
		t.Fatalf("fallback got %v, want the three plain words", fell)
	}
}
