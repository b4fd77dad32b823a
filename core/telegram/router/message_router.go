package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/instarepost/core/telegram"
	"github.com/m3rciful/instarepost/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// FSM is the subset of state.Manager the text router needs.
type FSM interface {
	InProgress(chatID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls fallback behaviour for text and media updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes routes plain text to the active dialog, then to a matching
// slash command, then to the registry text fallback. Documents and media outside
// a dialog get UnknownDocument.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	inDialog := func(c tele.Context) bool {
		return fsm != nil && c.Chat() != nil && fsm.InProgress(c.Chat().ID)
	}

	text := func(c tele.Context) error {
		if inDialog(c) {
			return handleWithSummary(c, "fsm", func() error { return fsm.ManagerHandler(c) })
		}
		if reg != nil {
			if key, cmd, ok := lookupCommand(reg, c.Text()); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return handleWithSummary(c, normalizeHandlerName(key), func() error { return cmd.Handler(c) })
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", func() error { return fb(c) })
			}
		}
		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", func() error { return opts.UnknownText(c) })
		}
		logHandlerSummary(c, "unknown_text", time.Now(), "skip", nil)
		return nil
	}

	media := func(c tele.Context) error {
		if opts.UnknownDocument != nil {
			return handleWithSummary(c, "unexpected_media", func() error { return opts.UnknownDocument(c) })
		}
		logHandlerSummary(c, "unexpected_media", time.Now(), "skip", nil)
		return nil
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: text},
		{Endpoint: tele.OnDocument, Handler: media},
		{Endpoint: tele.OnPhoto, Handler: media},
		{Endpoint: tele.OnVideo, Handler: media},
	}
}

// lookupCommand resolves "/name", "/name@bot" and "/name args". Text without
// a leading slash is never a command.
func lookupCommand(reg *tg.Registry, text string) (string, commands.Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", commands.Command{}, false
	}
	name, _, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return reg.LookupCommand(name)
}
