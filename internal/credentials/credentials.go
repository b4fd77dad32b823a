// Package credentials persists the single Instagram account the bot reposts
// with. Records live in a JSON file under the data directory (secret fields
// optionally sealed with a passphrase) or in the OS keyring.
package credentials

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/internal/instagram"
)

const (
	// BackendFile stores the record in DATA_DIR/credentials.json.
	BackendFile = "file"
	// BackendKeyring stores the record in the OS keyring.
	BackendKeyring = "keyring"

	fileName = "credentials.json"
)

var (
	// ErrNotFound is returned when no record has been stored yet.
	ErrNotFound = errors.New("credentials not found")
	// ErrPassphrase is returned when a sealed record cannot be opened.
	ErrPassphrase = errors.New("credentials: wrong passphrase or corrupted file")
)

// Record is the stored Instagram account.
type Record struct {
	Username  string    `json:"username"`
	Password  string    `json:"password,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	CSRFToken string    `json:"csrf_token,omitempty"`
	DSUserID  string    `json:"ds_user_id,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	LastLogin time.Time `json:"last_login"`
}

// Session returns the cookies the Instagram client authenticates with.
func (r Record) Session() instagram.Session {
	return instagram.Session{SessionID: r.SessionID, CSRFToken: r.CSRFToken, DSUserID: r.DSUserID}
}

// HasSession reports whether the record can authenticate without a login.
func (r Record) HasSession() bool { return r.SessionID != "" }

// Masked returns a copy safe to print or log.
func (r Record) Masked() Record {
	m := r
	m.Password = logger.Mask(r.Password)
	m.SessionID = logger.Mask(r.SessionID)
	m.CSRFToken = logger.Mask(r.CSRFToken)
	return m
}

// String renders the masked record on one line.
func (r Record) String() string {
	m := r.Masked()
	login := "never"
	if !m.LastLogin.IsZero() {
		login = m.LastLogin.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("username=%s session=%s last_login=%s", m.Username, m.SessionID, login)
}

// Store loads and saves the single record.
type Store interface {
	Load() (Record, error)
	Save(Record) error
	Delete() error
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend    string
	DataDir    string
	Passphrase string
}

// Open returns the store selected by opts.Backend ("file" when empty).
func Open(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendFile:
		return NewFileStore(filepath.Join(opts.DataDir, fileName), opts.Passphrase), nil
	case BackendKeyring:
		return NewKeyringStore(""), nil
	default:
		return nil, fmt.Errorf("credentials: unknown backend %q; allowed: file, keyring", opts.Backend)
	}
}
