package posts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/instarepost/internal/instagram"
)

func TestStoreSaveGetDelete(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "posts"))
	require.NoError(t, err)

	rec := NewRecord(10, 20, "https://www.instagram.com/p/abc/", "abc")
	rec.Kind = instagram.KindImage
	rec.Media = []MediaFile{{Path: "/tmp/x/image.jpg", Type: instagram.MediaImage, Size: 3}}
	require.NoError(t, s.Save(rec))

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, []string{"/tmp/x/image.jpg"}, got.Paths())

	got.SetCaption("")
	got.Status = StatusDownloaded
	require.NoError(t, s.Save(got))
	again, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.True(t, again.CaptionSet)
	assert.Equal(t, StatusDownloaded, again.Status)

	require.NoError(t, s.Delete(rec.ID))
	_, err = s.Get(rec.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete(rec.ID))
}

func TestStoreRejectsPathLikeIDs(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Get("../credentials")
	require.Error(t, err)
	require.Error(t, s.Save(&Record{ID: "../../etc/passwd"}))
}

func TestStoreListSkipsGarbage(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	first := NewRecord(1, 1, "u1", "a")
	second := NewRecord(1, 1, "u2", "b")
	second.CreatedAt = first.CreatedAt.Add(1)
	require.NoError(t, s.Save(second))
	require.NoError(t, s.Save(first))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}
