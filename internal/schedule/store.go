package schedule

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

// Store persists the single active schedule, encrypted at rest.
// Save replaces the previous schedule wholesale; there is no merge.
type Store struct {
	mu     sync.Mutex
	path   string
	cipher *secret.Cipher
	log    logx.Logger

	legacyPlaintext bool
}

func NewStore(path string, cipher *secret.Cipher, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, cipher: cipher, log: log}
}

// AllowLegacyPlaintext enables reading a pre-encryption plaintext schedule
// file for one transitional release.
func (st *Store) AllowLegacyPlaintext() {
	st.mu.Lock()
	st.legacyPlaintext = true
	st.mu.Unlock()
}

// Save validates the schedule and writes it encrypted with an atomic
// temp-file-then-rename replace.
func (st *Store) Save(s *Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	plain, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("schedule: encode: %w", err)
	}
	blob, err := st.cipher.Encrypt(plain)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("schedule: create dir: %w", err)
	}
	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("schedule: write: %w", err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("schedule: commit: %w", err)
	}
	st.log.Info("schedule saved",
		logx.String("policy", string(s.Policy)),
		logx.Int("accounts", len(s.Accounts)))
	return nil
}

// Load returns the active schedule, or (nil, nil) when none has been saved.
func (st *Store) Load() (*Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	blob, err := os.ReadFile(st.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: read: %w", err)
	}

	plain, err := st.cipher.Decrypt(blob)
	if err != nil {
		// A pre-encryption schedule file is plain JSON and fails the frame
		// check; a key mismatch fails authentication and must surface.
		if errors.Is(err, secret.ErrMalformed) && st.legacyPlaintext {
			st.log.Warn("schedule read via legacy plaintext fallback")
			plain = blob
		} else {
			return nil, fmt.Errorf("schedule: %w", err)
		}
	}

	var s Schedule
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, fmt.Errorf("schedule: parse: %w", err)
	}
	return &s, nil
}
