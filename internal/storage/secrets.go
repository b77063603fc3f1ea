package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/costplane/costplane/internal/config"
)

var (
	ErrMissingSecretsKey = errors.New("missing_secrets_key")
	ErrCiphertextInvalid = errors.New("ciphertext_invalid")
)

const nonceSize = 24

// Secrets seals and opens tenant credential material with a process-wide
// key derived from configuration.
type Secrets struct {
	key [32]byte
}

func NewSecrets(cfg config.Config) (*Secrets, error) {
	if cfg.SecretsKey == "" {
		return nil, ErrMissingSecretsKey
	}
	s := &Secrets{key: sha256.Sum256([]byte(cfg.SecretsKey))}
	return s, nil
}

// Seal encrypts plaintext and prepends the random nonce.
func (s *Secrets) Seal(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key), nil
}

func (s *Secrets) Open(ciphertext []byte) (string, error) {
	if len(ciphertext) < nonceSize {
		return "", ErrCiphertextInvalid
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrCiphertextInvalid
	}
	return string(plaintext), nil
}
