package conversation

import (
	"fmt"
	"strings"

	"github.com/m3rciful/instarepost/internal/posts"
	"github.com/m3rciful/instarepost/internal/repost"
)

const (
	msgAskURL          = "Send me a link to an Instagram post, reel or video."
	msgCaptionReprompt = "Send the new caption as a text message, or press \"Keep original caption\"."
	msgPreviewReprompt = "Use the buttons under the preview: Confirm, Edit caption or Cancel."
	msgExpired         = "This post is no longer available. Please send the link again."
	msgRepostFailed    = "Reposting failed. Press Confirm to try again, or Cancel."
	msgNothingToCancel = "Nothing to cancel."
	msgCancelled       = "Cancelled. Send a new link whenever you're ready."
	msgInternal        = "Something went wrong on our side. Please try again."

	msgStale     = "This button is no longer active"
	msgInFlight  = "Already publishing, please wait"
	msgPublished = "Published"
)

func welcomeText(username string) string {
	greeting := "Hi!"
	if username != "" {
		greeting = "Hi, @" + username + "!"
	}
	return greeting + " Send me a link to an Instagram post and I'll download it, " +
		"let you write a new caption and repost it with credit to the author.\n\n" +
		"/new starts over, /cancel drops the current post, /help lists commands."
}

func downloadedText(rec *posts.Record) string {
	var b strings.Builder
	n := len(rec.Media)
	fmt.Fprintf(&b, "Downloaded %d %s", n, plural(n, "file", "files"))
	if rec.Author != "" {
		fmt.Fprintf(&b, " from @%s", rec.Author)
	}
	b.WriteString(".\n\nOriginal caption:\n")
	if strings.TrimSpace(rec.OriginalCaption) == "" {
		b.WriteString("(no caption)")
	} else {
		b.WriteString(rec.OriginalCaption)
	}
	b.WriteString("\n\nSend me the new caption.")
	return b.String()
}

func editText(rec *posts.Record) string {
	text := "Send the new caption."
	if rec.CaptionSet && rec.Caption != "" {
		text = "Current caption:\n" + rec.Caption + "\n\n" + text
	}
	return text
}

func postedText(res *repost.Result) string {
	text := "Reposted ✅"
	if res == nil || len(res.Warnings) == 0 {
		return text
	}
	return text + "\n\nSome destinations failed:\n" + strings.Join(res.Warnings, "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
