// Package commands describes slash commands registered with the bot.
package commands

import tele "gopkg.in/telebot.v4"

// Command is a slash command: its handler, menu description and visibility.
// AdminOnly commands are wrapped with the admin check and hidden from the menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}

// InMenu reports whether the command belongs in the Telegram menu and /help.
func (c Command) InMenu() bool { return !c.Hidden && !c.AdminOnly }
