package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/instarepost/core/logger"
)

const (
	insertEntrySQL = `INSERT INTO reposts
		(id, post_id, chat_id, user_id, source_url, shortcode, author, caption, media_count, posted_at)
		VALUES (:id, :post_id, :chat_id, :user_id, :source_url, :shortcode, :author, :caption, :media_count, :posted_at)`

	listEntriesSQL = `SELECT id, post_id, chat_id, user_id, source_url, shortcode, author, caption, media_count, posted_at
		FROM reposts WHERE chat_id = $1 ORDER BY posted_at DESC LIMIT $2`
)

// Postgres stores entries in the reposts table created by the migrations.
// It does not own the handle; Close is a no-op.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open handle.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Add(ctx context.Context, e Entry) error {
	start := time.Now()
	_, err := p.db.NamedExecContext(ctx, insertEntrySQL, e)
	logger.Archive.LogAttrs(ctx, levelFor(err), "entry added",
		slog.String("event", "archive.add"),
		slog.String("backend", BackendPostgres),
		slog.String("post_id", e.PostID),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	if err != nil {
		return fmt.Errorf("archive: insert: %w", err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, chatID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Entry
	if err := p.db.SelectContext(ctx, &out, listEntriesSQL, chatID, limit); err != nil {
		return nil, fmt.Errorf("archive: select: %w", err)
	}
	return out, nil
}

func (p *Postgres) Close(context.Context) error { return nil }

func levelFor(err error) slog.Level {
	if err != nil {
		return slog.LevelError
	}
	return slog.LevelDebug
}
