// Package secret provides symmetric encryption at rest for credential,
// session and schedule blobs.
//
// A Cipher seals plaintext as [version | nonce | ciphertext] using
// XChaCha20-Poly1305. The one-byte version frame lets Decrypt distinguish
// data that was never produced by this package (ErrMalformed) from data
// sealed under a different key (ErrDecrypt). Callers rely on that split:
// a legacy-migration path may treat ErrMalformed input as plaintext, but
// ErrDecrypt always surfaces as a hard failure.
package secret

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// blobVersion frames every ciphertext this package produces.
	blobVersion = 0x01

	// KeySize is the length of the symmetric key in bytes.
	KeySize = chacha20poly1305.KeySize
)

var (
	// ErrDecrypt means the blob carries a valid frame but failed
	// authentication: corrupt ciphertext or a mismatched key. Data sealed
	// under key A and opened under key B always fails this way, never with
	// silently-wrong plaintext.
	ErrDecrypt = errors.New("secret: decrypt failed (corrupt data or wrong key)")

	// ErrMalformed means the input does not look like a sealed blob at all.
	ErrMalformed = errors.New("secret: malformed input")
)

// LoadOrCreateKey returns the key stored at path, generating and persisting
// a fresh one only when no key file exists yet.
//
// The key must remain stable for the lifetime of the data it protects:
// regenerating it orphans every existing ciphertext. A short or unreadable
// key file is therefore an error, never a trigger to regenerate.
func LoadOrCreateKey(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != KeySize {
			return nil, fmt.Errorf("secret: key file %s has %d bytes, want %d", path, len(b), KeySize)
		}
		return b, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("secret: read key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("secret: generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("secret: create key dir: %w", err)
	}
	// Write to a temp file first so a crash cannot leave a truncated key.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, key, 0o600); err != nil {
		return nil, fmt.Errorf("secret: write key file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("secret: commit key file: %w", err)
	}
	return key, nil
}

// Cipher encrypts and decrypts blobs under one symmetric key.
type Cipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	nonceSize int
}

// New creates a Cipher from a KeySize-byte key.
func New(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	return &Cipher{aead: aead, nonceSize: aead.NonceSize()}, nil
}

// Open is a convenience: load-or-create the key at path and build a Cipher.
func Open(keyPath string) (*Cipher, error) {
	key, err := LoadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secret: generate nonce: %w", err)
	}
	out := make([]byte, 0, 1+c.nonceSize+len(plaintext)+16)
	out = append(out, blobVersion)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt.
//
// Returns ErrMalformed when the input lacks the version frame or is too
// short to hold a nonce, and ErrDecrypt when authentication fails.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < 1+c.nonceSize || blob[0] != blobVersion {
		return nil, ErrMalformed
	}
	nonce := blob[1 : 1+c.nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, blob[1+c.nonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// Zero overwrites b. Used to bound the lifetime of plaintext credentials.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
