// Package media turns a submitted link into downloaded files and a post
// record.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/internal/instagram"
	"github.com/m3rciful/instarepost/internal/posts"
)

// Source looks up posts and downloads their media. *instagram.Client
// satisfies it.
type Source interface {
	FetchPost(ctx context.Context, shortcode string) (*instagram.Post, error)
	Download(ctx context.Context, mediaURL string, w io.Writer) (int64, error)
}

// SessionRefresher re-authenticates the source after an auth failure.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// Options configures New.
type Options struct {
	Source   Source
	Store    *posts.Store
	MediaDir string
	// Refresher is optional; without it auth failures are returned as is.
	Refresher SessionRefresher
}

// Fetcher downloads posts into MediaDir/<post id>/.
type Fetcher struct {
	src       Source
	store     *posts.Store
	dir       string
	refresher SessionRefresher
}

// New validates opts and creates the media directory.
func New(opts Options) (*Fetcher, error) {
	if opts.Source == nil || opts.Store == nil {
		return nil, errors.New("media: source and store are required")
	}
	if opts.MediaDir == "" {
		return nil, errors.New("media: media dir is required")
	}
	if err := os.MkdirAll(opts.MediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create %s: %w", opts.MediaDir, err)
	}
	return &Fetcher{src: opts.Source, store: opts.Store, dir: opts.MediaDir, refresher: opts.Refresher}, nil
}

// Dir returns the directory holding the files of post id.
func (f *Fetcher) Dir(id string) string { return PostDir(f.dir, id) }

// PostDir is the media directory of post id under root.
func PostDir(root, id string) string { return filepath.Join(root, id) }

// Fetch validates rawURL, looks the post up and downloads every item. On
// success the returned record is saved with status downloaded. On failure
// nothing is left on disk and the error is an *instagram.Error where the
// cause is known.
func (f *Fetcher) Fetch(ctx context.Context, chatID, userID int64, rawURL string) (*posts.Record, error) {
	start := time.Now()
	ref, err := instagram.ParsePostURL(rawURL)
	if err != nil {
		return nil, err
	}

	rec := posts.NewRecord(chatID, userID, ref.CanonicalURL(), ref.Shortcode)
	ctx = logger.WithPostID(ctx, rec.ID)
	if err := f.store.Save(rec); err != nil {
		return nil, err
	}

	err = f.fill(ctx, rec)
	attrs := []slog.Attr{
		slog.String("event", "fetch"),
		slog.String("shortcode", ref.Shortcode),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		f.discard(ctx, rec.ID)
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Fetcher.LogAttrs(ctx, slog.LevelWarn, "fetch failed", attrs...)
		return nil, err
	}
	attrs = append(attrs,
		slog.String("kind", string(rec.Kind)),
		slog.Int("media_count", len(rec.Media)),
	)
	logger.Fetcher.LogAttrs(ctx, slog.LevelInfo, "post downloaded", attrs...)
	return rec, nil
}

func (f *Fetcher) fill(ctx context.Context, rec *posts.Record) error {
	post, err := f.lookup(ctx, rec.Shortcode)
	if err != nil {
		return err
	}
	if len(post.Items) == 0 {
		return &instagram.Error{Type: instagram.ErrorTypeParsing, Message: "post has no media"}
	}

	dir := f.Dir(rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("media: create %s: %w", dir, err)
	}
	single := len(post.Items) == 1
	for i, item := range post.Items {
		path := filepath.Join(dir, FileName(item.Type, i+1, single))
		n, err := f.download(ctx, item.URL, path)
		if err != nil {
			return err
		}
		rec.Media = append(rec.Media, posts.MediaFile{Path: path, Type: item.Type, Size: n})
	}

	rec.Kind = post.Kind
	rec.Author = post.Author
	rec.OriginalCaption = post.Caption
	rec.Status = posts.StatusDownloaded
	return f.store.Save(rec)
}

// lookup retries once after refreshing the session when the first attempt
// fails with an auth error.
func (f *Fetcher) lookup(ctx context.Context, shortcode string) (*instagram.Post, error) {
	post, err := f.src.FetchPost(ctx, shortcode)
	if err == nil || f.refresher == nil || !instagram.IsType(err, instagram.ErrorTypeAuth) {
		return post, err
	}
	if rerr := f.refresher.Refresh(ctx); rerr != nil {
		logger.Fetcher.LogAttrs(ctx, slog.LevelWarn, "session refresh failed",
			slog.String("event", "fetch.refresh"),
			slog.String("err", rerr.Error()),
		)
		return nil, err
	}
	return f.src.FetchPost(ctx, shortcode)
}

func (f *Fetcher) download(ctx context.Context, url, path string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("media: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := f.src.Download(ctx, url, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("media: close %s: %w", tmpName, cerr)
	}
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, &instagram.Error{Type: instagram.ErrorTypeParsing, Message: "empty media file"}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, fmt.Errorf("media: rename to %s: %w", path, err)
	}
	return n, nil
}

func (f *Fetcher) discard(ctx context.Context, id string) {
	if err := os.RemoveAll(f.Dir(id)); err != nil {
		logger.Fetcher.LogAttrs(ctx, slog.LevelWarn, "partial media not removed",
			slog.String("event", "fetch.discard"),
			slog.String("err", err.Error()),
		)
	}
	if err := f.store.Delete(id); err != nil {
		logger.Fetcher.LogAttrs(ctx, slog.LevelWarn, "record not removed",
			slog.String("event", "fetch.discard"),
			slog.String("err", err.Error()),
		)
	}
}

// FileName names item i (1-based) of a post: image.jpg or video.mp4 for a
// single item, image_<i>.jpg or video_<i>.mp4 inside a carousel.
func FileName(t instagram.MediaType, i int, single bool) string {
	base, ext := "image", ".jpg"
	if t == instagram.MediaVideo {
		base, ext = "video", ".mp4"
	}
	if single {
		return base + ext
	}
	return fmt.Sprintf("%s_%d%s", base, i, ext)
}
