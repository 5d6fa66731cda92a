// Package account stores platform accounts (credential + publish flag) in a
// single encrypted-at-rest JSON file.
package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"reelpost/internal/secret"
	"reelpost/pkg/logx"
)

// ErrNotFound is returned for operations on an unknown account id.
var ErrNotFound = errors.New("account: not found")

// Account is the decrypted view of one registry entry.
type Account struct {
	ID             string
	Credential     []byte
	PublishEnabled bool
}

// Patch carries partial fields for Update. Nil fields are left unchanged.
type Patch struct {
	Credential     []byte
	PublishEnabled *bool
}

// record is the on-disk shape. Credential is a secret.Cipher blob.
// PublishEnabled is a pointer so records written before the flag existed
// can be told apart from records where it is explicitly false.
type record struct {
	Credential     []byte `json:"credential"`
	PublishEnabled *bool  `json:"publish_enabled,omitempty"`
}

// Registry is a mutex-guarded read-modify-write store over one file.
// Mutations write a temp file in the same directory and rename it into
// place, so a crash can never leave a partial registry behind.
type Registry struct {
	mu     sync.Mutex
	path   string
	cipher *secret.Cipher
	log    logx.Logger

	// legacyPlaintext allows one transitional release to read credential
	// blobs that predate encryption. A wrong-key failure never falls
	// through here.
	legacyPlaintext bool
}

func NewRegistry(path string, cipher *secret.Cipher, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{path: path, cipher: cipher, log: log}
}

// AllowLegacyPlaintext enables the one-release migration path for
// credential blobs stored before encryption was introduced.
func (r *Registry) AllowLegacyPlaintext() {
	r.mu.Lock()
	r.legacyPlaintext = true
	r.mu.Unlock()
}

// List returns every account, decrypted, keyed by id.
func (r *Registry) List() (map[string]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, migrated, err := r.readLocked()
	if err != nil {
		return nil, err
	}
	// Older files may lack publish_enabled; persist the normalized form
	// so the migration happens exactly once.
	if migrated {
		if err := r.writeLocked(recs); err != nil {
			return nil, err
		}
		r.log.Info("account registry normalized", logx.Int("accounts", len(recs)))
	}

	out := make(map[string]Account, len(recs))
	for id, rec := range recs {
		cred, err := r.decryptLocked(id, rec.Credential)
		if err != nil {
			return nil, err
		}
		out[id] = Account{ID: id, Credential: cred, PublishEnabled: *rec.PublishEnabled}
	}
	return out, nil
}

// Get returns one account or ErrNotFound.
func (r *Registry) Get(id string) (Account, error) {
	accounts, err := r.List()
	if err != nil {
		return Account{}, err
	}
	a, ok := accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// Upsert creates or fully replaces the account with the given id.
func (r *Registry) Upsert(id string, credential []byte, publishEnabled bool) error {
	if id == "" {
		return errors.New("account: id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, _, err := r.readLocked()
	if err != nil {
		return err
	}
	blob, err := r.cipher.Encrypt(credential)
	if err != nil {
		return err
	}
	enabled := publishEnabled
	recs[id] = record{Credential: blob, PublishEnabled: &enabled}
	if err := r.writeLocked(recs); err != nil {
		return err
	}
	r.log.Info("account upserted", logx.String("account", id), logx.Bool("publish_enabled", publishEnabled))
	return nil
}

// Update applies a partial change to an existing account.
// Returns ErrNotFound (and leaves the file untouched) when id is absent.
func (r *Registry) Update(id string, p Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, _, err := r.readLocked()
	if err != nil {
		return err
	}
	rec, ok := recs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.Credential != nil {
		blob, err := r.cipher.Encrypt(p.Credential)
		if err != nil {
			return err
		}
		rec.Credential = blob
	}
	if p.PublishEnabled != nil {
		enabled := *p.PublishEnabled
		rec.PublishEnabled = &enabled
	}
	recs[id] = rec
	if err := r.writeLocked(recs); err != nil {
		return err
	}
	r.log.Info("account updated", logx.String("account", id))
	return nil
}

// Delete removes an account. Returns ErrNotFound (without rewriting the
// file) when id is absent.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, _, err := r.readLocked()
	if err != nil {
		return err
	}
	if _, ok := recs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(recs, id)
	if err := r.writeLocked(recs); err != nil {
		return err
	}
	r.log.Info("account deleted", logx.String("account", id))
	return nil
}

func (r *Registry) decryptLocked(id string, blob []byte) ([]byte, error) {
	cred, err := r.cipher.Decrypt(blob)
	if err == nil {
		return cred, nil
	}
	// Only structurally unrecognized blobs may fall back to the legacy
	// plaintext path; a key mismatch must surface, not silently pass
	// ciphertext around as a credential.
	if errors.Is(err, secret.ErrMalformed) && r.legacyPlaintext {
		r.log.Warn("credential read via legacy plaintext fallback", logx.String("account", id))
		return blob, nil
	}
	return nil, fmt.Errorf("account %s: %w", id, err)
}

// readLocked loads the registry file. The second return reports whether any
// record needed publish_enabled normalization.
func (r *Registry) readLocked() (map[string]record, bool, error) {
	b, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]record{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("account: read registry: %w", err)
	}

	var recs map[string]record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, false, fmt.Errorf("account: parse registry: %w", err)
	}
	if recs == nil {
		recs = map[string]record{}
	}
	migrated := false
	for id, rec := range recs {
		if rec.PublishEnabled == nil {
			enabled := true
			rec.PublishEnabled = &enabled
			recs[id] = rec
			migrated = true
		}
	}
	return recs, migrated, nil
}

func (r *Registry) writeLocked(recs map[string]record) error {
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("account: encode registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("account: create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".accounts-*")
	if err != nil {
		return fmt.Errorf("account: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("account: write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("account: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("account: chmod registry: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("account: commit registry: %w", err)
	}
	return nil
}
