package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/m3rciful/instarepost/core/logger"
)

// fileRecord is what lands on disk. With a passphrase the secret fields are
// empty and Sealed carries them encrypted.
type fileRecord struct {
	Record
	Sealed *sealed `json:"sealed,omitempty"`
}

type secrets struct {
	Password  string `json:"password,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	CSRFToken string `json:"csrf_token,omitempty"`
}

// FileStore keeps the record in one JSON file with mode 0600.
type FileStore struct {
	path       string
	passphrase string
}

// NewFileStore returns a store at path. A non-empty passphrase seals the
// secret fields.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the record. A missing file yields ErrNotFound.
func (s *FileStore) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("credentials: read %s: %w", s.path, err)
	}

	var fr fileRecord
	if err := json.Unmarshal(data, &fr); err != nil {
		return Record{}, fmt.Errorf("credentials: decode %s: %w", s.path, err)
	}
	rec := fr.Record
	if fr.Sealed != nil {
		if s.passphrase == "" {
			return Record{}, fmt.Errorf("credentials: %s is sealed; set CREDENTIALS_PASSPHRASE", s.path)
		}
		plain, err := open(s.passphrase, fr.Sealed)
		if err != nil {
			return Record{}, err
		}
		var sec secrets
		if err := json.Unmarshal(plain, &sec); err != nil {
			return Record{}, fmt.Errorf("credentials: decode sealed fields: %w", err)
		}
		rec.Password, rec.SessionID, rec.CSRFToken = sec.Password, sec.SessionID, sec.CSRFToken
	}
	return rec, nil
}

// Save writes the record atomically.
func (s *FileStore) Save(rec Record) error {
	fr := fileRecord{Record: rec}
	if s.passphrase != "" {
		plain, err := json.Marshal(secrets{Password: rec.Password, SessionID: rec.SessionID, CSRFToken: rec.CSRFToken})
		if err != nil {
			return fmt.Errorf("credentials: encode secrets: %w", err)
		}
		box, err := seal(s.passphrase, plain)
		if err != nil {
			return fmt.Errorf("credentials: seal: %w", err)
		}
		fr.Password, fr.SessionID, fr.CSRFToken = "", "", ""
		fr.Sealed = box
	}

	data, err := json.MarshalIndent(fr, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: encode: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("credentials: write %s: %w", s.path, err)
	}
	logger.Creds.Info("credentials saved",
		slog.String("event", "creds.save"),
		slog.String("backend", BackendFile),
		slog.String("username", rec.Username),
		slog.Bool("sealed", fr.Sealed != nil),
	)
	return nil
}

// Delete removes the file; deleting a missing file is not an error.
func (s *FileStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credentials: delete %s: %w", s.path, err)
	}
	logger.Creds.Info("credentials deleted",
		slog.String("event", "creds.delete"),
		slog.String("backend", BackendFile),
	)
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
