package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"

	"github.com/m3rciful/instarepost/core/logger"
)

const (
	keyringService = "instarepost"
	keyringUser    = "instagram"
)

// KeyringStore keeps the record as JSON in the OS keyring.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store under service ("instarepost" when empty).
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = keyringService
	}
	return &KeyringStore{service: service}
}

func (k *KeyringStore) Load() (Record, error) {
	data, err := keyring.Get(k.service, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("credentials: keyring get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return Record{}, fmt.Errorf("credentials: decode keyring entry: %w", err)
	}
	return rec, nil
}

func (k *KeyringStore) Save(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("credentials: encode: %w", err)
	}
	if err := keyring.Set(k.service, keyringUser, string(data)); err != nil {
		return fmt.Errorf("credentials: keyring set: %w", err)
	}
	logger.Creds.Info("credentials saved",
		slog.String("event", "creds.save"),
		slog.String("backend", BackendKeyring),
		slog.String("username", rec.Username),
	)
	return nil
}

func (k *KeyringStore) Delete() error {
	if err := keyring.Delete(k.service, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credentials: keyring delete: %w", err)
	}
	logger.Creds.Info("credentials deleted",
		slog.String("event", "creds.delete"),
		slog.String("backend", BackendKeyring),
	)
	return nil
}
