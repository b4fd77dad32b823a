package media

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/instarepost/internal/instagram"
	"github.com/m3rciful/instarepost/internal/posts"
)

type fakeSource struct {
	post        *instagram.Post
	fetchErrs   []error
	downloadErr error
	fetches     int
}

func (f *fakeSource) FetchPost(_ context.Context, _ string) (*instagram.Post, error) {
	f.fetches++
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.post, nil
}

func (f *fakeSource) Download(_ context.Context, url string, w io.Writer) (int64, error) {
	if f.downloadErr != nil && strings.HasSuffix(url, "bad") {
		return 0, f.downloadErr
	}
	n, err := io.WriteString(w, "bytes of "+url)
	return int64(n), err
}

type fakeRefresher struct{ calls int }

func (r *fakeRefresher) Refresh(context.Context) error { r.calls++; return nil }

func newFetcher(t *testing.T, src Source, ref SessionRefresher) (*Fetcher, *posts.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := posts.NewStore(filepath.Join(root, "posts"))
	require.NoError(t, err)
	mediaDir := filepath.Join(root, "media")
	f, err := New(Options{Source: src, Store: store, MediaDir: mediaDir, Refresher: ref})
	require.NoError(t, err)
	return f, store, mediaDir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFetchSingleImageWritesExactlyOneFile(t *testing.T) {
	src := &fakeSource{post: &instagram.Post{
		Shortcode: "abc", Author: "alice", Caption: "sunset", Kind: instagram.KindImage,
		Items: []instagram.MediaItem{{Type: instagram.MediaImage, URL: "https://cdn/1.jpg"}},
	}}
	f, store, _ := newFetcher(t, src, nil)

	rec, err := f.Fetch(context.Background(), 1, 2, "instagram.com/p/abc/?igsh=x")
	require.NoError(t, err)
	assert.Equal(t, posts.StatusDownloaded, rec.Status)
	assert.Equal(t, "alice", rec.Author)
	assert.Equal(t, "sunset", rec.OriginalCaption)
	assert.Equal(t, "https://www.instagram.com/p/abc/", rec.SourceURL)

	assert.Equal(t, []string{"image.jpg"}, dirEntries(t, f.Dir(rec.ID)))
	require.Len(t, rec.Media, 1)
	assert.Equal(t, filepath.Join(f.Dir(rec.ID), "image.jpg"), rec.Media[0].Path)

	stored, err := store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, posts.StatusDownloaded, stored.Status)
}

func TestFetchCarouselNamesItems(t *testing.T) {
	src := &fakeSource{post: &instagram.Post{
		Shortcode: "car", Author: "bob", Kind: instagram.KindCarousel,
		Items: []instagram.MediaItem{
			{Type: instagram.MediaImage, URL: "u1"},
			{Type: instagram.MediaVideo, URL: "u2"},
			{Type: instagram.MediaImage, URL: "u3"},
		},
	}}
	f, _, _ := newFetcher(t, src, nil)

	rec, err := f.Fetch(context.Background(), 1, 2, "https://www.instagram.com/p/car/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"image_1.jpg", "video_2.mp4", "image_3.jpg"}, dirEntries(t, f.Dir(rec.ID)))
}

func TestFetchInvalidURLTouchesNothing(t *testing.T) {
	src := &fakeSource{}
	f, store, mediaDir := newFetcher(t, src, nil)

	_, err := f.Fetch(context.Background(), 1, 2, "https://example.com/p/abc/")
	require.True(t, instagram.IsType(err, instagram.ErrorTypeInvalidURL))
	assert.Zero(t, src.fetches)

	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, dirEntries(t, mediaDir))
}

func TestFetchFailureRemovesPartialState(t *testing.T) {
	src := &fakeSource{
		post: &instagram.Post{Kind: instagram.KindCarousel, Items: []instagram.MediaItem{
			{Type: instagram.MediaImage, URL: "ok"},
			{Type: instagram.MediaImage, URL: "bad"},
		}},
		downloadErr: &instagram.Error{Type: instagram.ErrorTypeNetwork, Message: "reset"},
	}
	f, store, mediaDir := newFetcher(t, src, nil)

	_, err := f.Fetch(context.Background(), 1, 2, "https://www.instagram.com/p/abc/")
	require.True(t, instagram.IsType(err, instagram.ErrorTypeNetwork))

	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, dirEntries(t, mediaDir))
}

func TestFetchNotFoundIsTyped(t *testing.T) {
	src := &fakeSource{fetchErrs: []error{&instagram.Error{Type: instagram.ErrorTypeNotFound, Code: 404}}}
	f, _, _ := newFetcher(t, src, &fakeRefresher{})

	_, err := f.Fetch(context.Background(), 1, 2, "https://www.instagram.com/reel/abc/")
	var igErr *instagram.Error
	require.True(t, errors.As(err, &igErr))
	assert.Equal(t, 404, igErr.Code)
	assert.Equal(t, 1, src.fetches)
}

func TestFetchRefreshesSessionOnce(t *testing.T) {
	authErr := &instagram.Error{Type: instagram.ErrorTypeAuth, Code: 401}
	src := &fakeSource{
		fetchErrs: []error{authErr},
		post: &instagram.Post{Kind: instagram.KindVideo, Items: []instagram.MediaItem{
			{Type: instagram.MediaVideo, URL: "v"},
		}},
	}
	ref := &fakeRefresher{}
	f, _, _ := newFetcher(t, src, ref)

	rec, err := f.Fetch(context.Background(), 1, 2, "https://www.instagram.com/tv/abc/")
	require.NoError(t, err)
	assert.Equal(t, 1, ref.calls)
	assert.Equal(t, 2, src.fetches)
	assert.Equal(t, []string{"video.mp4"}, dirEntries(t, f.Dir(rec.ID)))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "image.jpg", FileName(instagram.MediaImage, 1, true))
	assert.Equal(t, "video.mp4", FileName(instagram.MediaVideo, 1, true))
	assert.Equal(t, "image_2.jpg", FileName(instagram.MediaImage, 2, false))
	assert.Equal(t, "video_3.mp4", FileName(instagram.MediaVideo, 3, false))
}
