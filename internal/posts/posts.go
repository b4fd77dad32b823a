// Package posts stores one JSON file per post in progress under
// DATA_DIR/posts/<id>.json.
package posts

import (
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/instarepost/internal/instagram"
)

// Status is the lifecycle stage of a record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDownloaded Status = "downloaded"
	StatusPosted     Status = "posted"
)

// MediaFile is one downloaded file of a post.
type MediaFile struct {
	Path string              `json:"path"`
	Type instagram.MediaType `json:"type"`
	Size int64               `json:"size"`
}

// Record tracks a submitted post from URL to repost.
type Record struct {
	ID              string             `json:"id"`
	ChatID          int64              `json:"chat_id"`
	UserID          int64              `json:"user_id"`
	SourceURL       string             `json:"source_url"`
	Shortcode       string             `json:"shortcode"`
	Kind            instagram.PostKind `json:"kind,omitempty"`
	Media           []MediaFile        `json:"media,omitempty"`
	Author          string             `json:"author,omitempty"`
	OriginalCaption string             `json:"original_caption,omitempty"`
	Caption         string             `json:"caption,omitempty"`
	// CaptionSet distinguishes an intentionally empty caption from none yet.
	CaptionSet bool       `json:"caption_set,omitempty"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	PostedAt   *time.Time `json:"posted_at,omitempty"`
}

// NewRecord returns a pending record with a fresh id.
func NewRecord(chatID, userID int64, sourceURL, shortcode string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		UserID:    userID,
		SourceURL: sourceURL,
		Shortcode: shortcode,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetCaption stores the user's caption verbatim.
func (r *Record) SetCaption(text string) {
	r.Caption = text
	r.CaptionSet = true
}

// Paths returns the media file paths in order.
func (r *Record) Paths() []string {
	out := make([]string, len(r.Media))
	for i, m := range r.Media {
		out[i] = m.Path
	}
	return out
}
