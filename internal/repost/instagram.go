package repost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/internal/instagram"
)

// InstagramUploader is the part of *instagram.Client the publisher uses.
type InstagramUploader interface {
	UploadPhotos(ctx context.Context, paths []string, caption string) (string, error)
}

// InstagramPublisher reposts photo posts to the logged-in Instagram account.
// Posts with video are refused.
type InstagramPublisher struct {
	Uploader InstagramUploader
}

func (p *InstagramPublisher) Name() string { return "instagram" }

func (p *InstagramPublisher) Publish(ctx context.Context, item Item) error {
	start := time.Now()
	code, err := p.publish(ctx, item)
	attrs := []slog.Attr{
		slog.String("event", "repost.instagram"),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if item.Record != nil {
		attrs = append(attrs, slog.Int("media_count", len(item.Record.Media)))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Reposter.LogAttrs(ctx, slog.LevelWarn, "instagram publish failed", attrs...)
		return fmt.Errorf("repost: instagram: %w", err)
	}
	attrs = append(attrs, slog.String("shortcode", code))
	logger.Reposter.LogAttrs(ctx, slog.LevelInfo, "instagram publish", attrs...)
	return nil
}

func (p *InstagramPublisher) publish(ctx context.Context, item Item) (string, error) {
	rec := item.Record
	if rec == nil || len(rec.Media) == 0 {
		return "", errors.New("nothing to publish")
	}
	if len(rec.Media) > instagram.MaxCarouselItems {
		return "", fmt.Errorf("%d files, a post holds at most %d", len(rec.Media), instagram.MaxCarouselItems)
	}
	if utf8.RuneCountInString(item.Caption) > instagram.MaxCaptionRunes {
		return "", fmt.Errorf("caption is longer than %d characters", instagram.MaxCaptionRunes)
	}
	paths := make([]string, 0, len(rec.Media))
	for _, m := range rec.Media {
		// Video needs a cover frame, which is not produced here.
		if m.Type == instagram.MediaVideo {
			return "", errors.New("video posts are not supported")
		}
		paths = append(paths, m.Path)
	}
	return p.Uploader.UploadPhotos(ctx, paths, item.Caption)
}
