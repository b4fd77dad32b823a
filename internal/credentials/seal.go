package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	iterations = 100000
	keySize    = 32
)

// sealed is the on-disk form of encrypted secret fields. Data is the GCM
// nonce followed by the ciphertext.
type sealed struct {
	Salt []byte `json:"salt"`
	Data []byte `json:"data"`
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
}

func seal(passphrase string, plaintext []byte) (*sealed, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return &sealed{Salt: salt, Data: gcm.Seal(nonce, nonce, plaintext, nil)}, nil
}

func open(passphrase string, s *sealed) ([]byte, error) {
	if len(s.Salt) != saltSize {
		return nil, ErrPassphrase
	}
	gcm, err := newGCM(deriveKey(passphrase, s.Salt))
	if err != nil {
		return nil, err
	}
	if len(s.Data) < gcm.NonceSize() {
		return nil, ErrPassphrase
	}
	nonce, ciphertext := s.Data[:gcm.NonceSize()], s.Data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrPassphrase
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
