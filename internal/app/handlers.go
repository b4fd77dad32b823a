package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/instarepost/core/logger"
	coretelegram "github.com/m3rciful/instarepost/core/telegram"
	"github.com/m3rciful/instarepost/core/telegram/commands"
	tghelpers "github.com/m3rciful/instarepost/core/telegram/helpers"
	"github.com/m3rciful/instarepost/core/telegram/middleware"
	"github.com/m3rciful/instarepost/core/telegram/router"
	"github.com/m3rciful/instarepost/core/telegram/ui"
	"github.com/m3rciful/instarepost/internal/archive"
	"github.com/m3rciful/instarepost/internal/credentials"
	"github.com/m3rciful/instarepost/internal/instagram"

	tele "gopkg.in/telebot.v4"
)

const historyLimit = 10

var fallbacks = ui.Fallbacks{
	Text:     "Send me a link to an Instagram post, reel or video.",
	Document: "I only accept Instagram links.",
	Callback: "This button is no longer active",
}

func onRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Slow down a little"})
	}
	return tghelpers.SendText(c, "Too many messages, please wait a moment.")
}

func onAdminReject(c tele.Context) error {
	return tghelpers.SendText(c, "This command is only available to the bot admin.")
}

func (a *App) register(reg *coretelegram.Registry) error {
	reg.RegisterCommand("/start", commands.Command{Handler: a.flow.OnStart, Description: "Start over and show the welcome message"})
	reg.RegisterCommand("/new", commands.Command{Handler: a.flow.OnNew, Description: "Repost a new Instagram link"})
	reg.RegisterCommand("/cancel", commands.Command{Handler: a.flow.OnCancel, Description: "Drop the current post"})
	reg.RegisterCommand("/help", commands.Command{Handler: a.onHelp, Description: "List commands"})
	reg.RegisterCommand("/status", commands.Command{Handler: a.onStatus, Description: "Show where you are in the flow"})
	reg.RegisterCommand("/whoami", commands.Command{Handler: a.onWhoAmI, Description: "Show your Telegram ids"})
	reg.RegisterCommand("/history", commands.Command{Handler: a.onHistory, Description: "List your recent reposts"})
	reg.RegisterCommand("/logout", commands.Command{Handler: a.onLogout, Description: "Forget the Instagram session", AdminOnly: true})

	for key, h := range a.flow.Callbacks() {
		if err := reg.RegisterCallback(key, h); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(fallbacks.UnknownCallback())
	reg.SetTextFallback(a.flow.OnText)
	return nil
}

func (a *App) routes() []coretelegram.Route {
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: onAdminReject,
	})
	routes = append(routes, router.CallbackRoute(a.registry))
	return append(routes, router.TextRoutes(a.states, a.registry, router.TextOptions{
		UnknownText:     fallbacks.UnknownText(),
		UnknownDocument: a.flow.OnUnexpected,
	})...)
}

func (a *App) onHelp(c tele.Context) error {
	return tghelpers.SendText(c, "Send me an Instagram link to start.\n\n"+a.registry.HelpText())
}

func (a *App) onStatus(c tele.Context) error {
	if c.Chat() == nil {
		return nil
	}
	return tghelpers.SendText(c, a.flow.Describe(c.Chat().ID))
}

func (a *App) onWhoAmI(c tele.Context) error {
	return tghelpers.SendText(c, whoamiText(c.Sender(), c.Chat(), middleware.IsAdmin(c, a.cfg.Telegram.AdminID)))
}

func (a *App) onHistory(c tele.Context) error {
	if c.Chat() == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	entries, err := a.history.List(ctx, c.Chat().ID, historyLimit)
	if err != nil {
		logger.Archive.LogAttrs(ctx, slog.LevelError, "history list failed",
			slog.String("event", "archive.list"),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Could not load the history right now.")
	}
	return tghelpers.SendText(c, historyText(entries))
}

func (a *App) onLogout(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := a.Logout(ctx); err != nil {
		return tghelpers.SendText(c, "Logout failed: "+err.Error())
	}
	return tghelpers.SendText(c, "Instagram session removed. Restart the bot with credentials or run `instarepost login`.")
}

// Logout deletes the stored account and drops the client session.
func (a *App) Logout(ctx context.Context) error {
	err := a.creds.Delete()
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		return err
	}
	a.ig.SetSession(instagram.Session{})
	logger.Info(ctx, "credentials", "creds.logout")
	return nil
}

func whoamiText(user *tele.User, chat *tele.Chat, admin bool) string {
	var b strings.Builder
	if user != nil {
		fmt.Fprintf(&b, "User ID: %d\n", user.ID)
		if user.Username != "" {
			fmt.Fprintf(&b, "Username: @%s\n", user.Username)
		}
	}
	if chat != nil {
		fmt.Fprintf(&b, "Chat ID: %d\n", chat.ID)
	}
	if admin {
		b.WriteString("Role: admin\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func historyText(entries []archive.Entry) string {
	if len(entries) == 0 {
		return "No reposts yet."
	}
	var b strings.Builder
	b.WriteString("Recent reposts:\n")
	for i, e := range entries {
		author := e.Author
		if author == "" {
			author = "unknown"
		}
		fmt.Fprintf(&b, "\n%d. @%s, %s\n%s", i+1, author, e.PostedAt.UTC().Format(time.DateTime), e.SourceURL)
	}
	return b.String()
}
