package instagram

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJPEG(t *testing.T, w, h int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "photo.jpg")
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return p
}

type uploadServer struct {
	t          *testing.T
	uploads    []map[string]string
	configured url.Values
	sidecar    sidecarRequest
}

func (s *uploadServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t := s.t
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, webAppID, r.Header.Get("X-IG-App-ID"))
	assert.Equal(t, "csrf-1", r.Header.Get("X-CSRFToken"))
	switch {
	case strings.HasPrefix(r.URL.Path, "/rupload_igphoto/"):
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		name := strings.TrimPrefix(r.URL.Path, "/rupload_igphoto/")
		assert.Equal(t, name, r.Header.Get("X-Entity-Name"))
		assert.Equal(t, strconv.Itoa(len(body)), r.Header.Get("X-Entity-Length"))
		assert.Equal(t, "image/jpeg", r.Header.Get("X-Entity-Type"))
		var params map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.Header.Get("X-Instagram-Rupload-Params")), &params))
		assert.Equal(t, "fb_uploader_"+params["upload_id"], name)
		s.uploads = append(s.uploads, params)
		_, _ = io.WriteString(w, `{"status":"ok","upload_id":"`+params["upload_id"]+`"}`)
	case r.URL.Path == "/api/v1/media/configure/":
		require.NoError(t, r.ParseForm())
		s.configured = r.PostForm
		_, _ = io.WriteString(w, `{"status":"ok","media":{"id":"1_2","code":"NEW1"}}`)
	case r.URL.Path == "/api/v1/media/configure_sidecar/":
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s.sidecar))
		_, _ = io.WriteString(w, `{"status":"ok","media":{"id":"1_3","code":"NEW2"}}`)
	default:
		http.NotFound(w, r)
	}
}

func TestUploadSinglePhoto(t *testing.T) {
	srv := &uploadServer{t: t}
	c, _ := newTestClient(t, srv)
	c.SetSession(Session{SessionID: "sess-1", CSRFToken: "csrf-1"})

	code, err := c.UploadPhotos(context.Background(), []string{writeJPEG(t, 100, 100)}, "hi\n\nOriginal by @alice")
	require.NoError(t, err)
	assert.Equal(t, "NEW1", code)

	require.Len(t, srv.uploads, 1)
	assert.Equal(t, "1", srv.uploads[0]["media_type"])
	assert.Empty(t, srv.uploads[0]["is_sidecar"])
	assert.Equal(t, srv.uploads[0]["upload_id"], srv.configured.Get("upload_id"))
	assert.Equal(t, "hi\n\nOriginal by @alice", srv.configured.Get("caption"))
}

func TestUploadCarousel(t *testing.T) {
	srv := &uploadServer{t: t}
	c, _ := newTestClient(t, srv)
	c.SetSession(Session{SessionID: "sess-1", CSRFToken: "csrf-1"})

	paths := []string{writeJPEG(t, 100, 100), writeJPEG(t, 80, 100), writeJPEG(t, 191, 100)}
	code, err := c.UploadPhotos(context.Background(), paths, "three")
	require.NoError(t, err)
	assert.Equal(t, "NEW2", code)

	require.Len(t, srv.uploads, 3)
	require.Len(t, srv.sidecar.Children, 3)
	for i, params := range srv.uploads {
		assert.Equal(t, "1", params["is_sidecar"])
		assert.Equal(t, params["upload_id"], srv.sidecar.Children[i].UploadID)
	}
	assert.Equal(t, "three", srv.sidecar.Caption)
	assert.Equal(t, srv.uploads[0]["upload_id"], srv.sidecar.ClientSidecarID)
}

func TestUploadRejectsBeforeSending(t *testing.T) {
	srv := &uploadServer{t: t}
	c, _ := newTestClient(t, srv)
	ctx := context.Background()
	photo := writeJPEG(t, 100, 100)

	_, err := c.UploadPhotos(ctx, []string{photo}, "x")
	assert.True(t, IsType(err, ErrorTypeAuth), "got %v", err)

	c.SetSession(Session{SessionID: "sess-1", CSRFToken: "csrf-1"})
	_, err = c.UploadPhotos(ctx, nil, "x")
	require.Error(t, err)
	_, err = c.UploadPhotos(ctx, make([]string, MaxCarouselItems+1), "x")
	require.Error(t, err)
	_, err = c.UploadPhotos(ctx, []string{photo}, strings.Repeat("é", MaxCaptionRunes+1))
	require.Error(t, err)

	_, err = c.UploadPhotos(ctx, []string{writeJPEG(t, 100, 300)}, "tall")
	require.ErrorContains(t, err, "aspect ratio")

	notJPEG := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(notJPEG, []byte("not an image"), 0o644))
	_, err = c.UploadPhotos(ctx, []string{notJPEG}, "x")
	require.ErrorContains(t, err, "not a JPEG")

	assert.Empty(t, srv.uploads)
}

func TestUploadConfigureRefusals(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   ErrorType
	}{
		{http.StatusBadRequest, `{"status":"fail","message":"checkpoint_required"}`, ErrorTypeChallenge},
		{http.StatusForbidden, `{"status":"fail","message":"login_required"}`, ErrorTypeAuth},
		{http.StatusBadRequest, `{"status":"fail","message":"media too small"}`, ErrorTypeUnknown},
		{http.StatusOK, `{"status":"ok","media":{}}`, ErrorTypeParsing},
		{http.StatusTooManyRequests, `{}`, ErrorTypeRateLimit},
	}
	for _, tc := range cases {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/rupload_igphoto/") {
				_, _ = io.WriteString(w, `{"status":"ok"}`)
				return
			}
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, tc.body)
		}))
		c.SetSession(Session{SessionID: "sess-1", CSRFToken: "csrf-1"})
		_, err := c.UploadPhotos(context.Background(), []string{writeJPEG(t, 100, 100)}, "x")
		assert.True(t, IsType(err, tc.want), "%s: got %v", tc.body, err)
	}
}
