package cleanup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/instarepost/internal/posts"
)

func setup(t *testing.T) (*Cleaner, *posts.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := posts.NewStore(filepath.Join(root, "posts"))
	require.NoError(t, err)
	mediaDir := filepath.Join(root, "media")
	require.NoError(t, os.MkdirAll(mediaDir, 0o755))
	return New(store, mediaDir), store, mediaDir
}

func withMedia(t *testing.T, store *posts.Store, mediaDir string) *posts.Record {
	t.Helper()
	rec := posts.NewRecord(1, 1, "https://www.instagram.com/p/x/", "x")
	dir := filepath.Join(mediaDir, rec.ID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, "image.jpg")
	require.NoError(t, os.WriteFile(p, []byte("jpg"), 0o644))
	rec.Media = []posts.MediaFile{{Path: p}}
	require.NoError(t, store.Save(rec))
	return rec
}

func TestRemoveDeletesMediaAndRecord(t *testing.T) {
	c, store, mediaDir := setup(t)
	rec := withMedia(t, store, mediaDir)

	require.NoError(t, c.Remove(context.Background(), rec))
	_, err := os.Stat(filepath.Join(mediaDir, rec.ID))
	assert.True(t, os.IsNotExist(err))
	_, err = store.Get(rec.ID)
	require.ErrorIs(t, err, posts.ErrNotFound)

	// Removing twice is harmless.
	require.NoError(t, c.Remove(context.Background(), rec))
}

func TestSweepRemovesStaleRecordsAndOrphans(t *testing.T) {
	c, store, mediaDir := setup(t)
	fresh := withMedia(t, store, mediaDir)
	stale := withMedia(t, store, mediaDir)
	orphan := filepath.Join(mediaDir, "0b7c4f0e-0000-4000-8000-000000000000")
	require.NoError(t, os.MkdirAll(orphan, 0o755))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(orphan, old, old))

	// Save stamps UpdatedAt, so age the stale record on disk directly.
	stale.UpdatedAt = time.Now().Add(-48 * time.Hour)
	writeRaw(t, store, stale)

	res, err := c.Sweep(context.Background(), time.Now(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Records: 1, Orphans: 1}, res)

	_, err = store.Get(stale.ID)
	require.ErrorIs(t, err, posts.ErrNotFound)
	_, err = store.Get(fresh.ID)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(mediaDir, fresh.ID))
	require.NoError(t, err)
	_, err = os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepKeepsRecentDirWithoutRecord(t *testing.T) {
	c, _, mediaDir := setup(t)
	// A fetch writes media before its record is listed.
	pending := filepath.Join(mediaDir, "5d1e2a90-0000-4000-8000-000000000000")
	require.NoError(t, os.MkdirAll(pending, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pending, "image.jpg"), []byte("jpg"), 0o644))

	res, err := c.Sweep(context.Background(), time.Now(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	_, err = os.Stat(filepath.Join(pending, "image.jpg"))
	require.NoError(t, err)
}

func TestNewSweeperDefaults(t *testing.T) {
	c, _, _ := setup(t)
	s, err := NewSweeper(c, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRetention, s.retention)
	assert.Len(t, s.scheduler.Jobs(), 1)
}

func writeRaw(t *testing.T, store *posts.Store, rec *posts.Record) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), rec.ID+".json"), data, 0o644))
}
