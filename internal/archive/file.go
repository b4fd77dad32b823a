package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/m3rciful/instarepost/core/logger"
)

// File appends entries as JSON lines to one file.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns an archive at path; the file is created on first Add.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("archive: create dir: %w", err)
	}
	return &File{path: path}, nil
}

func (a *File) Add(ctx context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("archive: encode: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", a.path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("archive: append: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("archive: close: %w", err)
	}
	logger.Archive.LogAttrs(ctx, slog.LevelDebug, "entry added",
		slog.String("event", "archive.add"),
		slog.String("backend", BackendFile),
		slog.String("post_id", e.PostID),
	)
	return nil
}

// List scans the whole file; malformed lines are skipped.
func (a *File) List(ctx context.Context, chatID int64, limit int) ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.Open(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", a.path, err)
	}
	defer f.Close()

	var matched []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			logger.Archive.LogAttrs(ctx, slog.LevelWarn, "malformed line skipped",
				slog.String("event", "archive.list"),
				slog.String("err", err.Error()),
			)
			continue
		}
		if e.ChatID == chatID {
			matched = append(matched, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", a.path, err)
	}

	// Lines are in posting order; newest first.
	out := make([]Entry, 0, len(matched))
	for i := len(matched) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, matched[i])
	}
	return out, nil
}

func (a *File) Close(context.Context) error { return nil }
