// Package history records the outcome of publish attempts.
//
// Two backends are available: a dependency-free JSON Lines file and a
// SQLite database. Either gives operators an audit of what was published
// where, and when, across process restarts.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"reelpost/pkg/logx"
)

// Config configures history storage.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", history is disabled and Open returns
// (nil, nil); callers tolerate a nil Store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one per-account publish attempt.
// Keep it compact and schema-stable.
type Entry struct {
	At         time.Time `json:"at"`
	Cycle      string    `json:"cycle"`
	Account    string    `json:"account"`
	MediaCount int       `json:"media_count"`
	OK         bool      `json:"ok"`
	Reason     string    `json:"reason,omitempty"`
	TookMS     int64     `json:"took_ms"`
}

// Store is the persistence API the scheduler writes to.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
