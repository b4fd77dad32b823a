// Package archive keeps the history of completed reposts in a JSONL file,
// Postgres or MongoDB.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/instarepost/internal/posts"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendNone     = "none"
)

// Entry is one completed repost.
type Entry struct {
	ID         string    `json:"id" db:"id" bson:"_id"`
	PostID     string    `json:"post_id" db:"post_id" bson:"post_id"`
	ChatID     int64     `json:"chat_id" db:"chat_id" bson:"chat_id"`
	UserID     int64     `json:"user_id" db:"user_id" bson:"user_id"`
	SourceURL  string    `json:"source_url" db:"source_url" bson:"source_url"`
	Shortcode  string    `json:"shortcode" db:"shortcode" bson:"shortcode"`
	Author     string    `json:"author" db:"author" bson:"author"`
	Caption    string    `json:"caption" db:"caption" bson:"caption"`
	MediaCount int       `json:"media_count" db:"media_count" bson:"media_count"`
	PostedAt   time.Time `json:"posted_at" db:"posted_at" bson:"posted_at"`
}

// FromRecord builds the entry for rec published with caption.
func FromRecord(rec *posts.Record, caption string, postedAt time.Time) Entry {
	return Entry{
		ID:         uuid.NewString(),
		PostID:     rec.ID,
		ChatID:     rec.ChatID,
		UserID:     rec.UserID,
		SourceURL:  rec.SourceURL,
		Shortcode:  rec.Shortcode,
		Author:     rec.Author,
		Caption:    caption,
		MediaCount: len(rec.Media),
		PostedAt:   postedAt.UTC(),
	}
}

// Archive stores entries and lists a chat's most recent ones, newest first.
type Archive interface {
	Add(ctx context.Context, e Entry) error
	List(ctx context.Context, chatID int64, limit int) ([]Entry, error)
	Close(ctx context.Context) error
}

// Nop discards entries. It backs ARCHIVE_BACKEND=none.
type Nop struct{}

func (Nop) Add(context.Context, Entry) error { return nil }

func (Nop) List(context.Context, int64, int) ([]Entry, error) { return nil, nil }

func (Nop) Close(context.Context) error { return nil }

// ParseBackend normalizes a backend name ("file" when empty).
func ParseBackend(s string) (string, error) {
	switch b := strings.ToLower(strings.TrimSpace(s)); b {
	case "":
		return BackendFile, nil
	case BackendFile, BackendPostgres, BackendMongo, BackendNone:
		return b, nil
	case "postgresql", "pg":
		return BackendPostgres, nil
	case "mongodb":
		return BackendMongo, nil
	default:
		return "", fmt.Errorf("archive: unknown backend %q; allowed: file, postgres, mongo, none", s)
	}
}
