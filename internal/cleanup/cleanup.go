// Package cleanup deletes post media and records after a repost, on
// cancel, and on a retention schedule.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/internal/media"
	"github.com/m3rciful/instarepost/internal/posts"
)

const (
	DefaultRetention = 24 * time.Hour
	DefaultInterval  = 30 * time.Minute
)

// Cleaner removes the on-disk state of posts.
type Cleaner struct {
	store    *posts.Store
	mediaDir string
}

// New returns a cleaner for records in store and media under mediaDir.
func New(store *posts.Store, mediaDir string) *Cleaner {
	return &Cleaner{store: store, mediaDir: mediaDir}
}

// Remove deletes the post's media directory and its record.
func (c *Cleaner) Remove(ctx context.Context, rec *posts.Record) error {
	if rec == nil {
		return nil
	}
	return c.RemoveID(ctx, rec.ID)
}

// RemoveID is Remove for a record that may already be gone.
func (c *Cleaner) RemoveID(ctx context.Context, id string) error {
	dirErr := os.RemoveAll(media.PostDir(c.mediaDir, id))
	recErr := c.store.Delete(id)
	err := errors.Join(dirErr, recErr)
	attrs := []slog.Attr{
		slog.String("event", "cleanup.remove"),
		slog.String("post_id", id),
		slog.String("status", logger.Status(err)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Cleanup.LogAttrs(ctx, slog.LevelWarn, "post not fully removed", attrs...)
		return fmt.Errorf("cleanup: remove %s: %w", id, err)
	}
	logger.Cleanup.LogAttrs(ctx, slog.LevelDebug, "post removed", attrs...)
	return nil
}

// SweepResult counts what a sweep deleted.
type SweepResult struct {
	Records int
	Orphans int
}

// Sweep removes records not updated since now-retention and media
// directories older than the same cutoff that have no record.
func (c *Cleaner) Sweep(ctx context.Context, now time.Time, retention time.Duration) (SweepResult, error) {
	var res SweepResult
	start := time.Now()

	recs, err := c.store.List()
	if err != nil {
		return res, err
	}
	live := make(map[string]struct{}, len(recs))
	cutoff := now.Add(-retention)
	var errs []error
	for _, rec := range recs {
		if rec.UpdatedAt.Before(cutoff) {
			if err := c.Remove(ctx, rec); err != nil {
				errs = append(errs, err)
				continue
			}
			res.Records++
			continue
		}
		live[rec.ID] = struct{}{}
	}

	entries, err := os.ReadDir(c.mediaDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("cleanup: read %s: %w", c.mediaDir, err))
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := live[e.Name()]; ok {
			continue
		}
		// A directory newer than the cutoff may belong to a fetch that
		// started after List.
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(media.PostDir(c.mediaDir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Orphans++
	}

	err = errors.Join(errs...)
	logger.Cleanup.LogAttrs(ctx, slog.LevelInfo, "retention sweep",
		slog.String("event", "cleanup.sweep"),
		slog.String("status", logger.Status(err)),
		slog.Int("records", res.Records),
		slog.Int("orphans", res.Orphans),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return res, err
}

// Sweeper runs Sweep on a gocron schedule.
type Sweeper struct {
	cleaner   *Cleaner
	retention time.Duration
	scheduler *gocron.Scheduler
}

// NewSweeper schedules a sweep every interval. Zero values select the
// defaults (30m interval, 24h retention).
func NewSweeper(c *Cleaner, interval, retention time.Duration) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &Sweeper{cleaner: c, retention: retention, scheduler: gocron.NewScheduler(time.UTC)}
	s.scheduler.SingletonModeAll()
	if _, err := s.scheduler.Every(interval).Tag("retention-sweep").Do(s.run); err != nil {
		return nil, fmt.Errorf("cleanup: schedule sweep: %w", err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	_, _ = s.cleaner.Sweep(ctx, time.Now().UTC(), s.retention)
}

// Start runs the scheduler in the background; the first sweep runs immediately.
func (s *Sweeper) Start() { s.scheduler.StartAsync() }

// Stop halts the scheduler.
func (s *Sweeper) Stop() { s.scheduler.Stop() }
