package posts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/instarepost/core/logger"
)

// ErrNotFound is returned for an id with no record on disk.
var ErrNotFound = errors.New("post record not found")

// Store reads and writes records in a directory. Writes are atomic.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("posts: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the records directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("posts: invalid id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Save writes rec and bumps UpdatedAt.
func (s *Store) Save(rec *Record) error {
	if rec == nil {
		return errors.New("posts: nil record")
	}
	p, err := s.path(rec.ID)
	if err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("posts: encode %s: %w", rec.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(p, data); err != nil {
		return fmt.Errorf("posts: write %s: %w", rec.ID, err)
	}
	logger.Posts.Debug("record saved",
		slog.String("event", "posts.save"),
		slog.String("post_id", rec.ID),
		slog.String("state", string(rec.Status)),
	)
	return nil
}

// Get loads the record with id.
func (s *Store) Get(id string) (*Record, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("posts: read %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("posts: decode %s: %w", id, err)
	}
	return &rec, nil
}

// Delete removes the record; a missing record is not an error.
func (s *Store) Delete(id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("posts: delete %s: %w", id, err)
	}
	return nil
}

// List returns all readable records ordered by creation time. Unreadable
// files are logged and skipped.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("posts: list %s: %w", s.dir, err)
	}
	var out []*Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := s.Get(strings.TrimSuffix(name, ".json"))
		if err != nil {
			logger.Posts.Warn("skipping unreadable record",
				slog.String("event", "posts.list"),
				slog.String("file", name),
				slog.String("err", err.Error()),
			)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".post-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
