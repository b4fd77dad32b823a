// Package helpers bridges telebot contexts with the logging context (rid,
// handler, post id) and the outbound dispatcher.
package helpers

import (
	"context"

	"github.com/m3rciful/instarepost/core/logger"

	tele "gopkg.in/telebot.v4"
)

const contextKey = "logger_ctx"

// StoreContext attaches ctx to c for downstream helpers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom returns the context stored by StoreContext, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the stored request context or derives one from the
// update with rid and update/user/chat ids set.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}

	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	updateID := c.Update().ID

	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.TG)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the stored context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	return tag(c, handler != "", func(ctx context.Context) context.Context {
		return logger.WithHandler(ctx, handler)
	})
}

// WithPost tags the stored context with the post a button or reply refers
// to, so every log line of the update carries post_id.
func WithPost(c tele.Context, postID string) context.Context {
	return tag(c, postID != "", func(ctx context.Context) context.Context {
		return logger.WithPostID(ctx, postID)
	})
}

func tag(c tele.Context, ok bool, fn func(context.Context) context.Context) context.Context {
	ctx := BuildContext(c)
	if !ok {
		return ctx
	}
	ctx = fn(ctx)
	StoreContext(c, ctx)
	return ctx
}
