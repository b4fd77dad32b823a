package instagram

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	shortcodeRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	postHosts = map[string]struct{}{
		"instagram.com":     {},
		"www.instagram.com": {},
		"m.instagram.com":   {},
		"instagr.am":        {},
		"www.instagr.am":    {},
	}
	postPrefixes = map[string]struct{}{"p": {}, "reel": {}, "reels": {}, "tv": {}}
)

// PostRef identifies a post parsed from a link.
type PostRef struct {
	Shortcode string
	// Section is the path segment before the shortcode: p, reel, reels or tv.
	Section string
}

// CanonicalURL is the www.instagram.com/p/ form of the post link.
func (r PostRef) CanonicalURL() string {
	return BaseURL + "/p/" + r.Shortcode + "/"
}

// ParsePostURL validates raw as an Instagram post link. The scheme may be
// omitted; query and fragment are ignored. A username segment before
// /p/, /reel/, /reels/ or /tv/ is accepted.
func ParsePostURL(raw string) (PostRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return PostRef{}, newError(ErrorTypeInvalidURL, 0, "not a url: %q", raw)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return PostRef{}, wrapError(ErrorTypeInvalidURL, err, "unparsable url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return PostRef{}, newError(ErrorTypeInvalidURL, 0, "unsupported scheme %q", u.Scheme)
	}
	if _, ok := postHosts[strings.ToLower(u.Hostname())]; !ok {
		return PostRef{}, newError(ErrorTypeInvalidURL, 0, "not an instagram host: %q", u.Hostname())
	}

	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	// [section code] or [username section code]
	switch {
	case len(segs) >= 2 && isPostSection(segs[0]):
		segs = segs[:2]
	case len(segs) >= 3 && isPostSection(segs[1]):
		segs = segs[1:3]
	default:
		return PostRef{}, newError(ErrorTypeInvalidURL, 0, "not a post path: %q", u.Path)
	}
	if !shortcodeRe.MatchString(segs[1]) {
		return PostRef{}, newError(ErrorTypeInvalidURL, 0, "invalid shortcode %q", segs[1])
	}
	return PostRef{Section: strings.ToLower(segs[0]), Shortcode: segs[1]}, nil
}

func isPostSection(s string) bool {
	_, ok := postPrefixes[strings.ToLower(s)]
	return ok
}
