// Package instagram talks to the Instagram web endpoints: session login,
// post lookup with an Open Graph fallback, media download and photo
// publishing.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/core/netutil"
)

const (
	// BaseURL is the Instagram web origin.
	BaseURL = "https://www.instagram.com"

	// DefaultUserAgent is a desktop browser UA; the web endpoints reject bare clients.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	webAppID = "936619743392459"

	maxJSONBody = 8 << 20
	maxHTMLBody = 4 << 20
)

// Options configures NewClient. Zero values select defaults.
type Options struct {
	BaseURL           string
	HTTPClient        *http.Client
	UserAgent         string
	RequestsPerMinute int
	Burst             int
	// BreakerOpenFor is how long calls are refused after repeated failures.
	BreakerOpenFor time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	base  *url.URL
	http  *http.Client
	ua    string
	guard *guard

	mu      sync.RWMutex
	session Session
}

// NewClient builds a client for opts.BaseURL (www.instagram.com by default).
func NewClient(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = BaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("instagram: base url: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = netutil.NewClient(netutil.ClientOptions{Timeout: 60 * time.Second, Cookies: true})
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Client{
		base:  base,
		http:  hc,
		ua:    ua,
		guard: newGuard(opts.RequestsPerMinute, opts.Burst, opts.BreakerOpenFor),
	}, nil
}

// SetSession authenticates subsequent requests with s.
func (c *Client) SetSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// Session returns the current session.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// UserAgent returns the User-Agent sent with every request.
func (c *Client) UserAgent() string { return c.ua }

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, wrapError(ErrorTypeUnknown, err, "build request")
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	if sameHost(req.URL, c.base) {
		s := c.Session()
		if s.SessionID != "" {
			req.AddCookie(&http.Cookie{Name: "sessionid", Value: s.SessionID})
		}
		if s.DSUserID != "" {
			req.AddCookie(&http.Cookie{Name: "ds_user_id", Value: s.DSUserID})
		}
		if s.CSRFToken != "" {
			req.AddCookie(&http.Cookie{Name: "csrftoken", Value: s.CSRFToken})
			req.Header.Set("X-CSRFToken", s.CSRFToken)
		}
	}
	return req, nil
}

func sameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Host, b.Host)
}

// send runs req through the guard and returns the response once its status
// is 2xx. The caller closes the body.
func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := c.guard.do(ctx, func() error {
		r, err := c.http.Do(req)
		if err != nil {
			return wrapError(ErrorTypeNetwork, err, "network error: %v", err)
		}
		if e := statusError(r.StatusCode); e != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
			r.Body.Close()
			return e
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// FetchPost looks up a post by shortcode. The JSON endpoint is tried first;
// when it is refused or unreadable the public page's Open Graph tags are used.
func (c *Client) FetchPost(ctx context.Context, shortcode string) (*Post, error) {
	start := time.Now()
	post, err := c.fetchJSON(ctx, shortcode)
	source := "json"
	if err != nil && (IsType(err, ErrorTypeAuth) || IsType(err, ErrorTypeParsing)) {
		if htmlPost, htmlErr := c.fetchHTML(ctx, shortcode); htmlErr == nil {
			post, err, source = htmlPost, nil, "og"
		} else {
			logger.IG.Debug("og fallback failed",
				slog.String("event", "ig.fetch.og"),
				slog.String("shortcode", shortcode),
				slog.String("err", htmlErr.Error()),
			)
		}
	}

	attrs := []slog.Attr{
		slog.String("event", "ig.fetch"),
		slog.String("shortcode", shortcode),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.IG.LogAttrs(ctx, slog.LevelWarn, "post lookup failed", attrs...)
		return nil, err
	}
	attrs = append(attrs,
		slog.String("source", source),
		slog.String("kind", string(post.Kind)),
		slog.Int("media_count", len(post.Items)),
	)
	logger.IG.LogAttrs(ctx, slog.LevelInfo, "post lookup", attrs...)
	return post, nil
}

func (c *Client) fetchJSON(ctx context.Context, shortcode string) (*Post, error) {
	target := c.endpoint("/p/"+url.PathEscape(shortcode)+"/", url.Values{"__a": {"1"}, "__d": {"dis"}})
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-IG-App-ID", webAppID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		return nil, wrapError(ErrorTypeNetwork, err, "read response: %v", err)
	}
	var payload postResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		// A login wall is served as HTML with status 200.
		if strings.Contains(resp.Request.URL.Path, "/accounts/login") {
			return nil, newError(ErrorTypeAuth, resp.StatusCode, "login required")
		}
		return nil, wrapError(ErrorTypeParsing, err, "decode post %s", shortcode)
	}
	if payload.RequiresToLogin {
		return nil, newError(ErrorTypeAuth, http.StatusUnauthorized, "login required to view post")
	}
	return payload.toPost(shortcode)
}

func (c *Client) fetchHTML(ctx context.Context, shortcode string) (*Post, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint("/p/"+url.PathEscape(shortcode)+"/", nil), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return parseOpenGraph(io.LimitReader(resp.Body, maxHTMLBody), shortcode)
}

// Download streams the media at mediaURL into w.
func (c *Client) Download(ctx context.Context, mediaURL string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", c.base.String()+"/")

	resp, err := c.send(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, wrapError(ErrorTypeNetwork, err, "download interrupted after %d bytes", n)
	}
	return n, nil
}
