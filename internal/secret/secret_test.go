package secret

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "key"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	plain := []byte(`{"password":"hunter2"}`)
	blob, err := c.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(blob, []byte("hunter2")) {
		t.Fatalf("ciphertext leaks plaintext")
	}
	got, err := c.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestKeyFileReused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	k1, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("first LoadOrCreateKey: %v", err)
	}
	k2, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("second LoadOrCreateKey: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatalf("key regenerated across loads")
	}
}

func TestTruncatedKeyFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("short"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadOrCreateKey(path); err == nil {
		t.Fatalf("expected error for truncated key file")
	}
}

func TestWrongKeyFailsDistinctly(t *testing.T) {
	dir := t.TempDir()
	ca, err := Open(filepath.Join(dir, "key-a"))
	if err != nil {
		t.Fatalf("Open a: %v", err)
	}
	cb, err := Open(filepath.Join(dir, "key-b"))
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}
	blob, err := ca.Encrypt([]byte("sealed under a"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	_, err = cb.Decrypt(blob)
	if !errors.Is(err, ErrDecrypt) {
		t.Fatalf("want ErrDecrypt, got %v", err)
	}
}

func TestMalformedInputDistinctFromDecrypt(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "key"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, in := range [][]byte{
		nil,
		[]byte(""),
		[]byte("plaintext password file"),
		[]byte(`{"password":"legacy"}`),
		{blobVersion, 0x01, 0x02}, // framed but too short for a nonce
	} {
		if _, err := c.Decrypt(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("input %q: want ErrMalformed, got %v", in, err)
		}
	}

	// Flip a ciphertext byte: still framed, so it must fail as ErrDecrypt.
	blob, err := c.Encrypt([]byte("data"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	blob[len(blob)-1] ^= 0xff
	if _, err := c.Decrypt(blob); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("corrupt blob: want ErrDecrypt, got %v", err)
	}
}
