// Package config loads and watches the application configuration.
//
// Config files may be JSON or YAML; YAML is coerced to JSON so one strict
// decoder (DisallowUnknownFields) covers both. Duration fields are Go
// duration strings ("90s", "2m") parsed at validation time.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"reelpost/internal/history"
	"reelpost/internal/scheduler"
	"reelpost/pkg/logx"
)

type Config struct {
	Log       LogConfig       `json:"log"`
	Paths     PathsConfig     `json:"paths"`
	Scheduler SchedulerConfig `json:"scheduler"`
	History   HistoryConfig   `json:"history"`

	// Autostart starts the scheduler immediately on process start.
	Autostart bool `json:"autostart"`

	// LegacyPlaintext enables the one-release migration path for store
	// files written before encryption at rest was introduced.
	LegacyPlaintext bool `json:"legacy_plaintext"`
}

type LogConfig struct {
	Level   string `json:"level"`
	Console *bool  `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path"`
	} `json:"file"`
}

type PathsConfig struct {
	// DataDir anchors every relative store path below.
	DataDir  string `json:"data_dir"`
	Accounts string `json:"accounts"`
	Schedule string `json:"schedule"`
	Sessions string `json:"sessions"`
	Media    string `json:"media"`
	Key      string `json:"key"`
}

type SchedulerConfig struct {
	PollMin        string `json:"poll_min"`
	PollMax        string `json:"poll_max"`
	JitterMax      string `json:"jitter_max"`
	MediaPerPost   int    `json:"media_per_post"`
	PublishTimeout string `json:"publish_timeout"`
	AccountPacing  string `json:"account_pacing"`
	Timezone       string `json:"timezone"`
}

type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

// Default returns the configuration used when a field (or the whole file)
// is absent.
func Default() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.Paths.DataDir = "./data"
	cfg.Scheduler.MediaPerPost = 3
	cfg.History.Driver = "file"
	return cfg
}

// Validate checks cross-field constraints and is also the hot-reload
// gate: a config that fails here is rejected without being applied.
func (c *Config) Validate() error {
	if _, err := c.SchedulerSettings(); err != nil {
		return err
	}
	if _, err := c.HistorySettings(); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	switch d := strings.ToLower(strings.TrimSpace(c.History.Driver)); d {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("history.driver: unknown driver %q", d)
	}
	return nil
}

// LogSettings maps the raw config onto the logx config.
func (c *Config) LogSettings() logx.Config {
	console := true
	if c.Log.Console != nil {
		console = *c.Log.Console
	}
	return logx.Config{
		Level:   c.Log.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: c.Log.File.Enabled,
			Path:    c.resolve(c.Log.File.Path, "reelpost.log"),
		},
	}
}

// SchedulerSettings parses the raw scheduler block into scheduler.Config.
func (c *Config) SchedulerSettings() (scheduler.Config, error) {
	pollMin, err := ParseDurationField("scheduler.poll_min", c.Scheduler.PollMin)
	if err != nil {
		return scheduler.Config{}, err
	}
	pollMax, err := ParseDurationField("scheduler.poll_max", c.Scheduler.PollMax)
	if err != nil {
		return scheduler.Config{}, err
	}
	jitter, err := ParseDurationField("scheduler.jitter_max", c.Scheduler.JitterMax)
	if err != nil {
		return scheduler.Config{}, err
	}
	pubTimeout, err := ParseDurationField("scheduler.publish_timeout", c.Scheduler.PublishTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	pacing, err := ParseDurationField("scheduler.account_pacing", c.Scheduler.AccountPacing)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		PollMin:        pollMin,
		PollMax:        pollMax,
		JitterMax:      jitter,
		MediaPerPost:   c.Scheduler.MediaPerPost,
		PublishTimeout: pubTimeout,
		AccountPacing:  pacing,
		Timezone:       strings.TrimSpace(c.Scheduler.Timezone),
	}, nil
}

// HistorySettings parses the raw history block.
func (c *Config) HistorySettings() (history.Config, error) {
	busy, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout)
	if err != nil {
		return history.Config{}, err
	}
	path := c.History.Path
	if path == "" {
		switch strings.ToLower(strings.TrimSpace(c.History.Driver)) {
		case "sqlite", "sqlite3":
			path = "history.db"
		default:
			path = "history.jsonl"
		}
	}
	return history.Config{
		Driver:      c.History.Driver,
		Path:        c.resolve(path, ""),
		BusyTimeout: busy,
	}, nil
}

func (c *Config) AccountsPath() string { return c.resolve(c.Paths.Accounts, "accounts.json") }
func (c *Config) SchedulePath() string { return c.resolve(c.Paths.Schedule, "schedule.bin") }
func (c *Config) SessionsDir() string  { return c.resolve(c.Paths.Sessions, "sessions") }
func (c *Config) MediaDir() string     { return c.resolve(c.Paths.Media, "media") }
func (c *Config) KeyPath() string      { return c.resolve(c.Paths.Key, "reelpost.key") }

// resolve anchors a store path under DataDir unless it is already set and
// absolute.
func (c *Config) resolve(path, def string) string {
	if path == "" {
		path = def
	}
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	dataDir := c.Paths.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}
	return filepath.Join(dataDir, path)
}
