// Package session caches per-account authentication state so a publish
// cycle can skip the full login while the cached state is still valid.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reelpost/internal/secret"
	"reelpost/pkg/logx"
)

// Session is opaque authentication state (cookies, tokens) plus an expiry.
type Session struct {
	State  []byte    `json:"state"`
	Expiry time.Time `json:"expiry"`
}

// Valid reports whether the session can still be used at now. A nil
// session, a missing expiry, or now past the expiry all invalidate it;
// now exactly at the expiry is still valid.
func Valid(s *Session, now time.Time) bool {
	if s == nil || s.Expiry.IsZero() {
		return false
	}
	return !now.After(s.Expiry)
}

// Cache persists one session per account under dir, encrypted with its own
// key material, independent of the cipher protecting accounts and the
// schedule. Saving overwrites any previous session for the account.
type Cache struct {
	mu     sync.Mutex
	dir    string
	cipher *secret.Cipher
	log    logx.Logger
}

// OpenCache creates dir if needed and loads (or creates) the cache's own
// encryption key inside it.
func OpenCache(dir string, log logx.Logger) (*Cache, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session: create dir: %w", err)
	}
	cipher, err := secret.Open(filepath.Join(dir, "session.key"))
	if err != nil {
		return nil, err
	}
	return &Cache{dir: dir, cipher: cipher, log: log}, nil
}

// Load returns the cached session for the account, or nil when none exists.
// A session sealed under a different key surfaces as secret.ErrDecrypt.
func (c *Cache) Load(accountID string) (*Session, error) {
	path, err := c.path(accountID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", accountID, err)
	}
	plain, err := c.cipher.Decrypt(blob)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", accountID, err)
	}
	var s Session
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", accountID, err)
	}
	return &s, nil
}

// Save stores (or overwrites) the account's session.
func (c *Cache) Save(accountID string, s *Session) error {
	path, err := c.path(accountID)
	if err != nil {
		return err
	}
	plain, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", accountID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	blob, err := c.cipher.Encrypt(plain)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("session: write %s: %w", accountID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("session: commit %s: %w", accountID, err)
	}
	c.log.Debug("session saved", logx.String("account", accountID), logx.Time("expiry", s.Expiry))
	return nil
}

// Delete discards the account's session. Deleting an absent session is not
// an error.
func (c *Cache) Delete(accountID string) error {
	path, err := c.path(accountID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: delete %s: %w", accountID, err)
	}
	return nil
}

// path maps an account id to its session file, rejecting ids that would
// escape the cache directory.
func (c *Cache) path(accountID string) (string, error) {
	if accountID == "" || strings.ContainsAny(accountID, `/\`) || accountID != filepath.Base(accountID) {
		return "", fmt.Errorf("session: invalid account id %q", accountID)
	}
	return filepath.Join(c.dir, accountID+".session"), nil
}
