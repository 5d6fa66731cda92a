package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// decodeStrict fills cfg from raw file content. YAML files are converted to
// JSON first so a single strict decoder enforces the schema for both
// formats: unknown keys and trailing content are errors, not silent noise
// an operator discovers at 3am.
func decodeStrict(path string, raw []byte, cfg *Config) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("config: yaml: %w", err)
		}
		j, err := json.Marshal(stringifyKeys(v))
		if err != nil {
			return fmt.Errorf("config: yaml: %w", err)
		}
		raw = j
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("config: trailing content after document")
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// stringifyKeys rewrites YAML's map[any]any nodes with string keys so the
// tree survives json.Marshal.
func stringifyKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringifyKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringifyKeys(x[i])
		}
		return x
	default:
		return in
	}
}

// ParseDurationField parses a Go duration string from the config, treating
// empty as zero (meaning: use the component's default).
func ParseDurationField(key, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", key)
	}
	return d, nil
}
