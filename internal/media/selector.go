// Package media picks publishable files from a local content pool.
package media

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"reelpost/pkg/logx"
)

// videoExts are the file types considered part of the pool.
var videoExts = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
}

// Selector samples media files from a pool directory without replacement.
type Selector struct {
	dir string
	log logx.Logger
}

func NewSelector(dir string, log logx.Logger) *Selector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Selector{dir: dir, log: log}
}

// Pick returns up to count distinct media paths (absolute), sampled
// randomly without replacement. A pool smaller than count returns every
// available item rather than an error; callers decide whether a short
// result is usable.
func (s *Selector) Pick(count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	pool, err := s.scan()
	if err != nil {
		return nil, err
	}
	if len(pool) <= count {
		if len(pool) < count {
			s.log.Warn("media pool smaller than requested",
				logx.Int("available", len(pool)), logx.Int("requested", count))
		}
		return pool, nil
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:count], nil
}

// scan lists the pool, creating the directory on first use.
func (s *Selector) scan() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return nil, fmt.Errorf("media: create pool dir: %w", err)
		}
		s.log.Info("media pool directory created", logx.String("dir", s.dir))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("media: read pool dir: %w", err)
	}

	var pool []string
	for _, e := range entries {
		if e.IsDir() || !videoExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("media: resolve %s: %w", e.Name(), err)
		}
		pool = append(pool, abs)
	}
	return pool, nil
}
