package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m3rciful/instarepost/core/logger"
)

const (
	// MaxCaptionRunes is the longest caption Instagram accepts.
	MaxCaptionRunes = 2200
	// MaxCarouselItems is the most photos one post can carry.
	MaxCarouselItems = 10

	// Feed photos must fall between 4:5 portrait and 1.91:1 landscape.
	minAspect = 0.8
	maxAspect = 1.91
)

type ruploadResponse struct {
	Status   string `json:"status"`
	UploadID string `json:"upload_id"`
}

type configureResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Media   struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	} `json:"media"`
}

type sidecarChild struct {
	UploadID string `json:"upload_id"`
}

type sidecarRequest struct {
	Caption         string         `json:"caption"`
	ClientSidecarID string         `json:"client_sidecar_id"`
	SourceType      string         `json:"source_type"`
	Children        []sidecarChild `json:"children_metadata"`
}

// UploadPhotos publishes JPEG files from the logged-in account: one photo as
// a single post, several as a carousel. It returns the new post's shortcode.
func (c *Client) UploadPhotos(ctx context.Context, paths []string, caption string) (string, error) {
	start := time.Now()
	code, err := c.uploadPhotos(ctx, paths, caption)
	attrs := []slog.Attr{
		slog.String("event", "ig.upload"),
		slog.Int("files", len(paths)),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.IG.LogAttrs(ctx, slog.LevelWarn, "upload failed", attrs...)
		return "", err
	}
	attrs = append(attrs, slog.String("shortcode", code))
	logger.IG.LogAttrs(ctx, slog.LevelInfo, "upload", attrs...)
	return code, nil
}

func (c *Client) uploadPhotos(ctx context.Context, paths []string, caption string) (string, error) {
	if !c.Session().Valid() {
		return "", newError(ErrorTypeAuth, 0, "login required to publish")
	}
	if len(paths) == 0 || len(paths) > MaxCarouselItems {
		return "", fmt.Errorf("instagram: %d photos, want 1 to %d", len(paths), MaxCarouselItems)
	}
	if n := utf8.RuneCountInString(caption); n > MaxCaptionRunes {
		return "", fmt.Errorf("instagram: caption has %d characters, limit is %d", n, MaxCaptionRunes)
	}

	sidecar := len(paths) > 1
	base := time.Now().UnixMilli()
	ids := make([]string, 0, len(paths))
	for i, p := range paths {
		id := strconv.FormatInt(base+int64(i), 10)
		if err := c.uploadPhoto(ctx, p, id, sidecar); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if !sidecar {
		return c.configure(ctx, ids[0], caption)
	}
	return c.configureSidecar(ctx, ids, caption)
}

// uploadPhoto sends one JPEG to the resumable upload endpoint under uploadID.
func (c *Client) uploadPhoto(ctx context.Context, path, uploadID string, sidecar bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("instagram: read %s: %w", filepath.Base(path), err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || format != "jpeg" {
		return fmt.Errorf("instagram: %s is not a JPEG photo", filepath.Base(path))
	}
	if cfg.Height == 0 {
		return fmt.Errorf("instagram: %s has no height", filepath.Base(path))
	}
	if r := float64(cfg.Width) / float64(cfg.Height); r < minAspect || r > maxAspect {
		return fmt.Errorf("instagram: %s is %dx%d, aspect ratio must be between 4:5 and 1.91:1",
			filepath.Base(path), cfg.Width, cfg.Height)
	}

	params := map[string]string{
		"media_type": "1",
		"upload_id":  uploadID,
	}
	if sidecar {
		params["is_sidecar"] = "1"
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return wrapError(ErrorTypeUnknown, err, "encode upload params")
	}

	name := "fb_uploader_" + uploadID
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("/rupload_igphoto/"+name, nil), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Entity-Name", name)
	req.Header.Set("X-Entity-Length", strconv.Itoa(len(data)))
	req.Header.Set("X-Entity-Type", "image/jpeg")
	req.Header.Set("Offset", "0")
	req.Header.Set("X-Instagram-Rupload-Params", string(rawParams))
	req.Header.Set("X-IG-App-ID", webAppID)

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out ruploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return wrapError(ErrorTypeParsing, err, "decode upload response")
	}
	if out.Status != "ok" {
		return newError(ErrorTypeServerError, resp.StatusCode, "photo upload refused: %s", out.Status)
	}
	return nil
}

func (c *Client) configure(ctx context.Context, uploadID, caption string) (string, error) {
	form := url.Values{
		"upload_id":   {uploadID},
		"caption":     {caption},
		"source_type": {"library"},
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("/api/v1/media/configure/", nil), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doConfigure(ctx, req)
}

func (c *Client) configureSidecar(ctx context.Context, uploadIDs []string, caption string) (string, error) {
	body := sidecarRequest{
		Caption:         caption,
		ClientSidecarID: uploadIDs[0],
		SourceType:      "library",
	}
	for _, id := range uploadIDs {
		body.Children = append(body.Children, sidecarChild{UploadID: id})
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", wrapError(ErrorTypeUnknown, err, "encode carousel")
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("/api/v1/media/configure_sidecar/", nil), bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doConfigure(ctx, req)
}

// doConfigure posts a configure request. Refusals come back as 400 with a
// JSON body, so the body is read before the status is judged.
func (c *Client) doConfigure(ctx context.Context, req *http.Request) (string, error) {
	req.Header.Set("X-IG-App-ID", webAppID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.endpoint("/", nil))

	var (
		code int
		body []byte
	)
	err := c.guard.do(ctx, func() error {
		r, err := c.http.Do(req)
		if err != nil {
			return wrapError(ErrorTypeNetwork, err, "network error: %v", err)
		}
		defer r.Body.Close()
		b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			return wrapError(ErrorTypeNetwork, err, "read configure response: %v", err)
		}
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			return statusError(r.StatusCode)
		}
		code, body = r.StatusCode, b
		return nil
	})
	if err != nil {
		return "", err
	}

	var cr configureResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		if e := statusError(code); e != nil {
			return "", e
		}
		return "", wrapError(ErrorTypeParsing, err, "decode configure response")
	}
	switch {
	case cr.Message == "checkpoint_required" || cr.Message == "challenge_required":
		return "", newError(ErrorTypeChallenge, code, "security checkpoint required")
	case cr.Message == "login_required" || code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "", newError(ErrorTypeAuth, code, "login required to publish")
	case cr.Status != "ok":
		msg := cr.Message
		if msg == "" {
			msg = "post refused"
		}
		return "", newError(ErrorTypeUnknown, code, "%s", msg)
	case cr.Media.Code == "":
		return "", newError(ErrorTypeParsing, code, "configure response has no media code")
	}
	return cr.Media.Code, nil
}
