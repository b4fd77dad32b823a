// Package repost composes the final caption and publishes a downloaded post
// to Telegram and any secondary destinations.
package repost

import (
	"strings"

	"github.com/m3rciful/instarepost/internal/posts"
)

// Attribution credits the original author: "Original by @<author>".
func Attribution(author string) string {
	return "Original by @" + strings.TrimPrefix(strings.TrimSpace(author), "@")
}

// attributionFor falls back to the source link when the author is unknown.
func attributionFor(author, sourceURL string) string {
	if strings.TrimSpace(strings.TrimPrefix(author, "@")) == "" {
		return "Original: " + sourceURL
	}
	return Attribution(author)
}

// ComposeCaption appends the attribution to the user's text, separated by a
// blank line. An empty text yields the attribution alone.
func ComposeCaption(userText, author string) string {
	return join(userText, Attribution(author))
}

// Compose builds the caption for rec from its user caption.
func Compose(rec *posts.Record) string {
	return join(rec.Caption, attributionFor(rec.Author, rec.SourceURL))
}

func join(userText, attribution string) string {
	if userText == "" {
		return attribution
	}
	return userText + "\n\n" + attribution
}
