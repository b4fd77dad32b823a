package middleware

import (
	"log/slog"
	"strings"

	"github.com/m3rciful/instarepost/core/logger"
	tghelpers "github.com/m3rciful/instarepost/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether the sender of c is adminID. A zero adminID
// matches nobody.
func IsAdmin(c tele.Context, adminID int64) bool {
	if adminID == 0 || c == nil {
		return false
	}
	sender := c.Sender()
	return sender != nil && sender.ID == adminID
}

// AdminOnlyMiddleware lets only the configured admin reach next. Rejected
// calls are logged with the attempted command.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if IsAdmin(c, opts.AdminID) {
				return next(c)
			}
			cmd, _, _ := strings.Cut(c.Text(), " ")
			logger.TG.LogAttrs(tghelpers.BuildContext(c), slog.LevelWarn, "admin command rejected",
				slog.String("event", "access.reject"),
				slog.String("command", logger.SanitizeLimit(cmd, 32)),
				slog.Bool("admin_configured", opts.AdminID != 0),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
