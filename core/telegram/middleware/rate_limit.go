package middleware

import (
	"log/slog"
	"sync"
	"time"

	coreconfig "github.com/m3rciful/instarepost/core/config"
	"github.com/m3rciful/instarepost/core/logger"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

type userLimiters struct {
	mu       sync.Mutex
	interval time.Duration
	byUser   map[int64]*rate.Limiter
}

func (l *userLimiters) allow(userID int64) bool {
	l.mu.Lock()
	lim, ok := l.byUser[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.byUser[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// UpdateKind classifies an update for rate limit exclusions.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return coreconfig.UpdateCallback
	case upd.Message != nil:
		return coreconfig.UpdateMessage
	case upd.Query != nil:
		return coreconfig.UpdateInlineQuery
	}
	return "other"
}

// RateLimitMiddleware allows one update per Interval for each user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limiters := &userLimiters{interval: opts.Interval, byUser: make(map[int64]*rate.Limiter)}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[UpdateKind(c.Update())]; skip {
				return next(c)
			}
			if limiters.allow(user.ID) {
				return next(c)
			}

			attrs := []slog.Attr{
				slog.String("event", "tg.rate_limit"),
				slog.Int64("user_id", user.ID),
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.Int64("chat_id", chat.ID))
			}
			logger.TG.LogAttrs(logger.Background(), slog.LevelWarn, "rate limit", attrs...)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
