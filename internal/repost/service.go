package repost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/internal/archive"
	"github.com/m3rciful/instarepost/internal/posts"
)

var (
	// ErrNotReady is returned when the record has no media yet.
	ErrNotReady = errors.New("post is not ready to publish")
	// ErrInFlight is returned while the same post is being published.
	ErrInFlight = errors.New("post is already being published")
)

// Recorder stores completed reposts.
type Recorder interface {
	Add(ctx context.Context, e archive.Entry) error
}

// Remover deletes a post's files and record.
type Remover interface {
	Remove(ctx context.Context, rec *posts.Record) error
}

// Options configures NewService.
type Options struct {
	Store   *posts.Store
	Primary Publisher
	// Secondary publishers run after Primary; their failures are reported
	// in Result.Warnings only.
	Secondary []Publisher
	Recorder  Recorder
	Remover   Remover
}

// Service publishes confirmed posts.
type Service struct {
	store     *posts.Store
	primary   Publisher
	secondary []Publisher
	recorder  Recorder
	remover   Remover

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Result describes a completed repost.
type Result struct {
	Caption  string
	Entry    archive.Entry
	Warnings []string
}

// NewService validates opts.
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Primary == nil {
		return nil, errors.New("repost: store and primary publisher are required")
	}
	return &Service{
		store:     opts.Store,
		primary:   opts.Primary,
		secondary: opts.Secondary,
		recorder:  opts.Recorder,
		remover:   opts.Remover,
		inflight:  make(map[string]struct{}),
	}, nil
}

// Confirm publishes the record with id. A primary failure leaves the record
// untouched so the user can retry. After success the record is marked
// posted, archived and removed with its media.
func (s *Service) Confirm(ctx context.Context, id string) (*Result, error) {
	if !s.acquire(id) {
		return nil, ErrInFlight
	}
	defer s.release(id)

	ctx = logger.WithPostID(ctx, id)
	rec, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.Status != posts.StatusDownloaded || len(rec.Media) == 0 {
		return nil, fmt.Errorf("%w (status %s)", ErrNotReady, rec.Status)
	}

	start := time.Now()
	item := Item{Record: rec, Caption: Compose(rec)}
	if err := s.primary.Publish(ctx, item); err != nil {
		return nil, err
	}

	res := &Result{Caption: item.Caption}
	for _, p := range s.secondary {
		if err := p.Publish(ctx, item); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", p.Name(), err))
			logger.Reposter.LogAttrs(ctx, slog.LevelWarn, "secondary publish failed",
				slog.String("event", "repost.secondary"),
				slog.String("publisher", p.Name()),
				slog.String("err", err.Error()),
			)
		}
	}

	now := time.Now().UTC()
	rec.Status = posts.StatusPosted
	rec.PostedAt = &now
	if err := s.store.Save(rec); err != nil {
		s.warn(ctx, "record not marked posted", err)
	}
	res.Entry = archive.FromRecord(rec, item.Caption, now)
	if s.recorder != nil {
		if err := s.recorder.Add(ctx, res.Entry); err != nil {
			s.warn(ctx, "archive write failed", err)
		}
	}
	if s.remover != nil {
		if err := s.remover.Remove(ctx, rec); err != nil {
			s.warn(ctx, "cleanup after repost failed", err)
		}
	}

	logger.Reposter.LogAttrs(ctx, slog.LevelInfo, "reposted",
		slog.String("event", "repost"),
		slog.String("shortcode", rec.Shortcode),
		slog.String("author", rec.Author),
		slog.Int("media_count", len(rec.Media)),
		slog.Int("warnings", len(res.Warnings)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return res, nil
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	logger.Reposter.LogAttrs(ctx, slog.LevelWarn, msg,
		slog.String("event", "repost.finish"),
		slog.String("err", err.Error()),
	)
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}
