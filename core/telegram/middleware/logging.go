package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/instarepost/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const receiptTTL = 10 * time.Second

// receipts remembers recently logged update ids; the middleware may wrap
// several branches of the same update.
var receipts = struct {
	sync.Mutex
	seen map[int]time.Time
}{seen: make(map[int]time.Time)}

func alreadyLogged(updateID int) bool {
	now := time.Now()
	receipts.Lock()
	defer receipts.Unlock()
	for id, ts := range receipts.seen {
		if now.Sub(ts) > receiptTTL {
			delete(receipts.seen, id)
		}
	}
	if _, ok := receipts.seen[updateID]; ok {
		return true
	}
	receipts.seen[updateID] = now
	return false
}

// LoggerMiddleware stores a request context (rid, update/chat/user ids) on the
// telebot context and writes one sampled debug receipt per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		user := c.Sender()
		chat := c.Chat()

		var chatID, userID int64
		if chat != nil {
			chatID = chat.ID
		}
		if user != nil {
			userID = user.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.TG)
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && !alreadyLogged(upd.ID) {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user != nil && user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			switch {
			case upd.Callback != nil:
				key, payload := callbacks.Parse(upd.Callback)
				attrs = append(attrs,
					slog.String("cb_key", logger.SanitizeLimit(key, 128)),
					slog.String("payload", logger.SanitizeLimit(payload, 256)),
				)
			case upd.Message != nil:
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(c.Text(), 256)))
			}
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		}

		return next(c)
	}
}
