package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/m3rciful/instarepost/core/logger"
)

var csrfInPageRe = regexp.MustCompile(`"csrf_token":"([^"]+)"`)

type loginResponse struct {
	Authenticated     bool   `json:"authenticated"`
	User              bool   `json:"user"`
	UserID            string `json:"userId"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	CheckpointURL     string `json:"checkpoint_url"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	ErrorType         string `json:"error_type"`
}

// Login authenticates with username and password and installs the
// resulting session on the client.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	start := time.Now()
	sess, err := c.login(ctx, username, password)
	attrs := []slog.Attr{
		slog.String("event", "ig.login"),
		slog.String("username", logger.SanitizeLimit(username, 64)),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.IG.LogAttrs(ctx, slog.LevelWarn, "login failed", attrs...)
		return Session{}, err
	}
	logger.IG.LogAttrs(ctx, slog.LevelInfo, "login", attrs...)
	c.SetSession(sess)
	return sess, nil
}

func (c *Client) login(ctx context.Context, username, password string) (Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return Session{}, newError(ErrorTypeAuth, 0, "username and password are required")
	}
	csrf, err := c.loginCSRF(ctx)
	if err != nil {
		return Session{}, err
	}

	form := url.Values{
		"username":             {username},
		"enc_password":         {fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), password)},
		"queryParams":          {"{}"},
		"optIntoOneTap":        {"false"},
		"trustedDeviceRecords": {"{}"},
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("/api/v1/web/accounts/login/ajax/", nil), strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", csrf)
	req.Header.Set("X-IG-App-ID", webAppID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.endpoint("/accounts/login/", nil))
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: csrf})

	var (
		resp *http.Response
		body []byte
	)
	err = c.guard.do(ctx, func() error {
		r, err := c.http.Do(req)
		if err != nil {
			return wrapError(ErrorTypeNetwork, err, "network error: %v", err)
		}
		defer r.Body.Close()
		b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			return wrapError(ErrorTypeNetwork, err, "read login response: %v", err)
		}
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			return statusError(r.StatusCode)
		}
		resp, body = r, b
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	// Checkpoint and bad-password answers come back as 400 with a JSON body.
	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		if e := statusError(resp.StatusCode); e != nil {
			return Session{}, e
		}
		return Session{}, wrapError(ErrorTypeParsing, err, "decode login response")
	}

	switch {
	case lr.CheckpointURL != "" || lr.Message == "checkpoint_required" || lr.Message == "challenge_required":
		return Session{}, newError(ErrorTypeChallenge, resp.StatusCode, "security checkpoint required")
	case lr.TwoFactorRequired:
		return Session{}, newError(ErrorTypeChallenge, resp.StatusCode, "two-factor authentication required")
	case lr.Authenticated:
	case !lr.User:
		return Session{}, newError(ErrorTypeAuth, resp.StatusCode, "unknown username")
	default:
		msg := "incorrect password"
		if lr.Message != "" {
			msg = lr.Message
		}
		return Session{}, newError(ErrorTypeAuth, resp.StatusCode, "%s", msg)
	}

	sess := Session{CSRFToken: csrf, DSUserID: lr.UserID}
	for _, ck := range c.responseCookies(resp) {
		switch ck.Name {
		case "sessionid":
			sess.SessionID = ck.Value
		case "csrftoken":
			sess.CSRFToken = ck.Value
		case "ds_user_id":
			sess.DSUserID = ck.Value
		}
	}
	if !sess.Valid() {
		return Session{}, newError(ErrorTypeAuth, resp.StatusCode, "login succeeded without a session cookie")
	}
	return sess, nil
}

// loginCSRF fetches the login page for a csrftoken cookie, falling back to
// the token embedded in the page.
func (c *Client) loginCSRF(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint("/accounts/login/", nil), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	for _, ck := range c.responseCookies(resp) {
		if ck.Name == "csrftoken" && ck.Value != "" {
			return ck.Value, nil
		}
	}
	page, _ := io.ReadAll(io.LimitReader(resp.Body, maxHTMLBody))
	if m := csrfInPageRe.FindSubmatch(page); m != nil {
		return string(m[1]), nil
	}
	return "", newError(ErrorTypeParsing, resp.StatusCode, "csrf token not found on login page")
}

// responseCookies merges Set-Cookie headers with cookies the jar already holds.
func (c *Client) responseCookies(resp *http.Response) []*http.Cookie {
	cookies := resp.Cookies()
	if c.http.Jar != nil {
		cookies = append(cookies, c.http.Jar.Cookies(c.base)...)
	}
	return cookies
}
