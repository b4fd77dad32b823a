package repost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/m3rciful/instarepost/core/logger"
	tgsender "github.com/m3rciful/instarepost/core/telegram/sender"
	"github.com/m3rciful/instarepost/internal/instagram"
	"github.com/m3rciful/instarepost/internal/posts"

	tele "gopkg.in/telebot.v4"
)

const (
	// CaptionLimit is Telegram's media caption length.
	CaptionLimit = 1024
	textLimit    = 4096
	albumLimit   = 10
)

// Item is what publishers receive.
type Item struct {
	Record  *posts.Record
	Caption string
}

// Publisher delivers an item to one destination.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, item Item) error
}

// TelegramAPI is the part of *tele.Bot the publisher uses.
type TelegramAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	SendAlbum(to tele.Recipient, a tele.Album, opts ...interface{}) ([]tele.Message, error)
}

// TelegramPublisher sends media to TargetChatID, or to the chat the post
// came from when it is zero.
type TelegramPublisher struct {
	API          TelegramAPI
	TargetChatID int64
}

func (p *TelegramPublisher) Name() string { return "telegram" }

// Destination returns the chat a record is published to.
func (p *TelegramPublisher) Destination(rec *posts.Record) int64 {
	if p.TargetChatID != 0 {
		return p.TargetChatID
	}
	return rec.ChatID
}

// Publish sends one file as a photo or video, several as albums of up to ten
// items with the caption on the first. A caption over the limit follows the
// media as text.
func (p *TelegramPublisher) Publish(ctx context.Context, item Item) error {
	rec := item.Record
	if rec == nil || len(rec.Media) == 0 {
		return errors.New("repost: nothing to publish")
	}
	to := tele.ChatID(p.Destination(rec))
	start := time.Now()

	mediaCaption, trailing := item.Caption, ""
	if utf8.RuneCountInString(item.Caption) > CaptionLimit {
		mediaCaption, trailing = "", item.Caption
	}

	err := p.sendMedia(to, rec.Media, mediaCaption)
	if err == nil && trailing != "" {
		for _, chunk := range splitRunes(trailing, textLimit) {
			if _, err = p.API.Send(to, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
				break
			}
		}
	}

	attrs := []slog.Attr{
		slog.String("event", "repost.telegram"),
		slog.Int64("target_chat_id", int64(to)),
		slog.Int("media_count", len(rec.Media)),
		slog.Bool("caption_split", trailing != ""),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		err = tgsender.RedactError(err)
		attrs = append(attrs,
			slog.String("err", err.Error()),
			slog.String("err_class", tgsender.ClassifyError(err)),
		)
		logger.Reposter.LogAttrs(ctx, slog.LevelWarn, "telegram publish failed", attrs...)
		return fmt.Errorf("repost: telegram: %w", err)
	}
	logger.Reposter.LogAttrs(ctx, slog.LevelInfo, "telegram publish", attrs...)
	return nil
}

func (p *TelegramPublisher) sendMedia(to tele.Recipient, files []posts.MediaFile, caption string) error {
	if len(files) == 1 {
		_, err := p.API.Send(to, inputFor(files[0], caption))
		return err
	}
	i := 0
	for _, size := range albumSizes(len(files)) {
		album := make(tele.Album, 0, size)
		for _, f := range files[i : i+size] {
			c := ""
			if i == 0 && len(album) == 0 {
				c = caption
			}
			album = append(album, inputFor(f, c))
		}
		if _, err := p.API.SendAlbum(to, album); err != nil {
			return err
		}
		i += size
	}
	return nil
}

// albumSizes splits n > 1 files into albums of 2 to albumLimit items;
// sendMediaGroup rejects a single-item album.
func albumSizes(n int) []int {
	var sizes []int
	for n > 0 {
		k := min(n, albumLimit)
		if n-k == 1 {
			k--
		}
		sizes = append(sizes, k)
		n -= k
	}
	return sizes
}

func inputFor(f posts.MediaFile, caption string) tele.Inputtable {
	if f.Type == instagram.MediaVideo {
		return &tele.Video{File: tele.FromDisk(f.Path), Caption: caption}
	}
	return &tele.Photo{File: tele.FromDisk(f.Path), Caption: caption}
}

func splitRunes(s string, n int) []string {
	var out []string
	r := []rune(s)
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	return append(out, string(r))
}
