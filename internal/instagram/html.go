package instagram

import (
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// og:description reads like `12 likes, 3 comments - alice on May 1, 2024: "caption".`
	ogDescriptionRe = regexp.MustCompile(`(?s)-\s+([A-Za-z0-9._]+)\s+on\s+[^:]+:\s*"(.*)"\.?\s*$`)
	// og:title and twitter:title mention the handle as `(@alice)` or `@alice`.
	handleRe = regexp.MustCompile(`@([A-Za-z0-9._]+)`)
	// og:title reads like `Alice on Instagram: "caption"`.
	ogTitleCaptionRe = regexp.MustCompile(`(?s)on Instagram:\s*"(.*)"\s*$`)
)

// parseOpenGraph builds a single-item Post from a post page's meta tags.
func parseOpenGraph(r io.Reader, shortcode string) (*Post, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, wrapError(ErrorTypeParsing, err, "parse post page")
	}
	meta := func(keys ...string) string {
		for _, k := range keys {
			sel := doc.Find(`meta[property="` + k + `"], meta[name="` + k + `"]`).First()
			if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	p := &Post{Shortcode: shortcode}
	if v := meta("og:video:secure_url", "og:video"); v != "" {
		p.Kind = KindVideo
		p.Items = []MediaItem{{Type: MediaVideo, URL: v}}
	} else if v := meta("og:image"); v != "" {
		p.Kind = KindImage
		p.Items = []MediaItem{{Type: MediaImage, URL: v}}
	} else {
		return nil, newError(ErrorTypeParsing, 0, "post page for %s has no og:image", shortcode)
	}

	title := meta("og:title", "twitter:title")
	if m := ogDescriptionRe.FindStringSubmatch(meta("og:description", "description")); m != nil {
		p.Author, p.Caption = m[1], m[2]
	}
	if p.Author == "" {
		if m := handleRe.FindStringSubmatch(title); m != nil {
			p.Author = m[1]
		}
	}
	if p.Caption == "" {
		if m := ogTitleCaptionRe.FindStringSubmatch(title); m != nil {
			p.Caption = m[1]
		}
	}
	return p, nil
}
