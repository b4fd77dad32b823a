package repost

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/instarepost/internal/archive"
	"github.com/m3rciful/instarepost/internal/cleanup"
	"github.com/m3rciful/instarepost/internal/instagram"
	"github.com/m3rciful/instarepost/internal/posts"

	tele "gopkg.in/telebot.v4"
)

type sent struct {
	to    tele.Recipient
	what  interface{}
	album tele.Album
}

type fakeAPI struct {
	calls []sent
	err   error
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.calls = append(f.calls, sent{to: to, what: what})
	return &tele.Message{}, f.err
}

func (f *fakeAPI) SendAlbum(to tele.Recipient, a tele.Album, _ ...interface{}) ([]tele.Message, error) {
	f.calls = append(f.calls, sent{to: to, album: a})
	return nil, f.err
}

type fakePublisher struct {
	name  string
	err   error
	items []Item
}

func (f *fakePublisher) Name() string { return f.name }

func (f *fakePublisher) Publish(_ context.Context, item Item) error {
	f.items = append(f.items, item)
	return f.err
}

func TestComposeCaption(t *testing.T) {
	assert.Equal(t, "Original by @alice", Attribution("alice"))
	assert.Equal(t, "Original by @alice", Attribution("@alice"))
	assert.Equal(t, "nice view\n\nOriginal by @alice", ComposeCaption("nice view", "alice"))
	assert.Equal(t, "Original by @alice", ComposeCaption("", "alice"))
	assert.Equal(t, "  \n\nOriginal by @alice", ComposeCaption("  ", "alice"))

	rec := &posts.Record{Caption: "hi", SourceURL: "https://www.instagram.com/p/x/"}
	assert.Equal(t, "hi\n\nOriginal: https://www.instagram.com/p/x/", Compose(rec))
	rec.Author = "bob"
	assert.Equal(t, ComposeCaption("hi", "bob"), Compose(rec))
}

func record(files ...posts.MediaFile) *posts.Record {
	rec := posts.NewRecord(100, 7, "https://www.instagram.com/p/x/", "x")
	rec.Media = files
	rec.Author = "alice"
	rec.Status = posts.StatusDownloaded
	return rec
}

func TestTelegramPublishSinglePhoto(t *testing.T) {
	api := &fakeAPI{}
	p := &TelegramPublisher{API: api}
	rec := record(posts.MediaFile{Path: "/m/image.jpg", Type: instagram.MediaImage})

	require.NoError(t, p.Publish(context.Background(), Item{Record: rec, Caption: "cap"}))
	require.Len(t, api.calls, 1)
	assert.Equal(t, tele.ChatID(100), api.calls[0].to)
	photo, ok := api.calls[0].what.(*tele.Photo)
	require.True(t, ok)
	assert.Equal(t, "cap", photo.Caption)
}

func TestTelegramPublishAlbumToTarget(t *testing.T) {
	api := &fakeAPI{}
	p := &TelegramPublisher{API: api, TargetChatID: -100500}
	var files []posts.MediaFile
	for i := 0; i < 12; i++ {
		typ := instagram.MediaImage
		if i == 1 {
			typ = instagram.MediaVideo
		}
		files = append(files, posts.MediaFile{Path: "/m/f", Type: typ})
	}

	require.NoError(t, p.Publish(context.Background(), Item{Record: record(files...), Caption: "cap"}))
	require.Len(t, api.calls, 2)
	assert.Equal(t, tele.ChatID(-100500), api.calls[0].to)
	assert.Len(t, api.calls[0].album, 10)
	assert.Len(t, api.calls[1].album, 2)
	assert.Equal(t, "cap", api.calls[0].album[0].(*tele.Photo).Caption)
	assert.IsType(t, &tele.Video{}, api.calls[0].album[1])
	assert.Empty(t, api.calls[1].album[0].(*tele.Photo).Caption)
}

func TestTelegramPublishAlbumNeverSendsSingleItem(t *testing.T) {
	for n, want := range map[int][]int{
		11: {9, 2},
		20: {10, 10},
		21: {10, 9, 2},
	} {
		api := &fakeAPI{}
		p := &TelegramPublisher{API: api}
		files := make([]posts.MediaFile, n)
		for i := range files {
			files[i] = posts.MediaFile{Path: "/m/f", Type: instagram.MediaImage}
		}

		require.NoError(t, p.Publish(context.Background(), Item{Record: record(files...), Caption: "cap"}))
		var got []int
		for _, call := range api.calls {
			got = append(got, len(call.album))
		}
		assert.Equal(t, want, got, "%d files", n)
		assert.Equal(t, "cap", api.calls[0].album[0].(*tele.Photo).Caption)
	}
}

func TestAlbumSizes(t *testing.T) {
	for n := 2; n <= 45; n++ {
		total := 0
		for _, size := range albumSizes(n) {
			assert.GreaterOrEqual(t, size, 2, "n=%d", n)
			assert.LessOrEqual(t, size, albumLimit, "n=%d", n)
			total += size
		}
		assert.Equal(t, n, total)
	}
}

func TestTelegramPublishLongCaptionFollowsAsText(t *testing.T) {
	api := &fakeAPI{}
	p := &TelegramPublisher{API: api}
	long := strings.Repeat("ж", CaptionLimit+1)
	rec := record(posts.MediaFile{Path: "/m/video.mp4", Type: instagram.MediaVideo})

	require.NoError(t, p.Publish(context.Background(), Item{Record: rec, Caption: long}))
	require.Len(t, api.calls, 2)
	assert.Empty(t, api.calls[0].what.(*tele.Video).Caption)
	assert.Equal(t, long, api.calls[1].what)
}

func TestTelegramPublishRedactsToken(t *testing.T) {
	api := &fakeAPI{err: errors.New(`Post "https://api.telegram.org/bot123:ABC/sendPhoto": timeout`)}
	p := &TelegramPublisher{API: api}
	err := p.Publish(context.Background(), Item{Record: record(posts.MediaFile{Path: "a"}), Caption: "c"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "ABC")
}

type env struct {
	store    *posts.Store
	mediaDir string
	history  *archive.File
}

func newEnv(t *testing.T) env {
	t.Helper()
	root := t.TempDir()
	store, err := posts.NewStore(filepath.Join(root, "posts"))
	require.NoError(t, err)
	history, err := archive.NewFile(filepath.Join(root, "history.jsonl"))
	require.NoError(t, err)
	return env{store: store, mediaDir: filepath.Join(root, "media"), history: history}
}

func (e env) downloaded(t *testing.T, caption string) *posts.Record {
	t.Helper()
	rec := record()
	dir := filepath.Join(e.mediaDir, rec.ID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "image.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpg"), 0o644))
	rec.Media = []posts.MediaFile{{Path: path, Type: instagram.MediaImage}}
	rec.SetCaption(caption)
	require.NoError(t, e.store.Save(rec))
	return rec
}

func TestConfirmPublishesArchivesAndCleansUp(t *testing.T) {
	e := newEnv(t)
	rec := e.downloaded(t, "my words")
	primary := &fakePublisher{name: "telegram"}
	drive := &fakePublisher{name: "drive", err: errors.New("quota")}
	svc, err := NewService(Options{
		Store:     e.store,
		Primary:   primary,
		Secondary: []Publisher{drive},
		Recorder:  e.history,
		Remover:   cleanup.New(e.store, e.mediaDir),
	})
	require.NoError(t, err)

	res, err := svc.Confirm(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "my words\n\nOriginal by @alice", res.Caption)
	require.Len(t, primary.items, 1)
	assert.Equal(t, res.Caption, primary.items[0].Caption)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "drive")

	_, err = os.Stat(filepath.Join(e.mediaDir, rec.ID))
	assert.True(t, os.IsNotExist(err))
	_, err = e.store.Get(rec.ID)
	require.ErrorIs(t, err, posts.ErrNotFound)

	history, err := e.history.List(context.Background(), rec.ChatID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, rec.ID, history[0].PostID)
}

func TestConfirmPrimaryFailureKeepsRecord(t *testing.T) {
	e := newEnv(t)
	rec := e.downloaded(t, "x")
	svc, err := NewService(Options{
		Store:   e.store,
		Primary: &fakePublisher{name: "telegram", err: errors.New("boom")},
		Remover: cleanup.New(e.store, e.mediaDir),
	})
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), rec.ID)
	require.Error(t, err)
	got, err := e.store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, posts.StatusDownloaded, got.Status)
	_, err = os.Stat(rec.Media[0].Path)
	require.NoError(t, err)
}

func TestConfirmRejectsPendingRecord(t *testing.T) {
	e := newEnv(t)
	rec := posts.NewRecord(1, 1, "u", "x")
	require.NoError(t, e.store.Save(rec))
	svc, err := NewService(Options{Store: e.store, Primary: &fakePublisher{name: "telegram"}})
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), rec.ID)
	require.ErrorIs(t, err, ErrNotReady)
}

type fakeUploader struct {
	paths   []string
	caption string
	calls   int
	err     error
}

func (f *fakeUploader) UploadPhotos(_ context.Context, paths []string, caption string) (string, error) {
	f.calls++
	f.paths, f.caption = paths, caption
	return "NEW1", f.err
}

func TestInstagramPublishPhotos(t *testing.T) {
	up := &fakeUploader{}
	p := &InstagramPublisher{Uploader: up}
	rec := record(
		posts.MediaFile{Path: "/m/1.jpg", Type: instagram.MediaImage},
		posts.MediaFile{Path: "/m/2.jpg", Type: instagram.MediaImage},
	)

	require.NoError(t, p.Publish(context.Background(), Item{Record: rec, Caption: "hi\n\nOriginal by @alice"}))
	assert.Equal(t, []string{"/m/1.jpg", "/m/2.jpg"}, up.paths)
	assert.Equal(t, "hi\n\nOriginal by @alice", up.caption)

	up.err = errors.New("checkpoint")
	err := p.Publish(context.Background(), Item{Record: rec, Caption: "x"})
	require.ErrorContains(t, err, "instagram")
}

func TestInstagramPublishRefusesBeforeUpload(t *testing.T) {
	up := &fakeUploader{}
	p := &InstagramPublisher{Uploader: up}
	ctx := context.Background()
	img := posts.MediaFile{Path: "/m/1.jpg", Type: instagram.MediaImage}

	err := p.Publish(ctx, Item{Record: record(img, posts.MediaFile{Path: "/m/2.mp4", Type: instagram.MediaVideo})})
	require.ErrorContains(t, err, "video")

	many := make([]posts.MediaFile, instagram.MaxCarouselItems+1)
	for i := range many {
		many[i] = img
	}
	require.Error(t, p.Publish(ctx, Item{Record: record(many...)}))
	require.Error(t, p.Publish(ctx, Item{Record: record(img), Caption: strings.Repeat("a", instagram.MaxCaptionRunes+1)}))
	require.Error(t, p.Publish(ctx, Item{Record: record()}))
	assert.Zero(t, up.calls)
}
