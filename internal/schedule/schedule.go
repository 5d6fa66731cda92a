// Package schedule defines the publish schedule, its validation rules, its
// encrypted persistence, and the policy math that derives future action
// times from it.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Policy selects how future action times are derived.
type Policy string

const (
	// PolicyFixedTimes fires at up to MaxFixedTimes fixed times of day.
	PolicyFixedTimes Policy = "fixed_times"
	// PolicyInterval fires every IntervalMinutes, measured from the last fire.
	PolicyInterval Policy = "interval"
	// PolicyRandomWindow fires once per day at a uniformly drawn instant
	// inside [WindowStart, WindowEnd).
	PolicyRandomWindow Policy = "random_window"
)

const (
	// MaxFixedTimes caps the number of daily time slots.
	MaxFixedTimes = 3

	MinIntervalMinutes = 1
	MaxIntervalMinutes = 600
)

// Schedule is the single active schedule definition. Exactly one exists at
// a time; Store.Save replaces the previous one wholesale.
type Schedule struct {
	Policy Policy `json:"policy"`

	// Times holds "HH:MM" entries for PolicyFixedTimes.
	Times []string `json:"times,omitempty"`
	// IntervalMinutes is the rolling interval for PolicyInterval.
	IntervalMinutes int `json:"interval_minutes,omitempty"`
	// WindowStart/WindowEnd bound the daily window for PolicyRandomWindow,
	// as "HH:MM" with start < end.
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`

	Accounts []string `json:"accounts"`
	Caption  string   `json:"caption"`
}

// ValidationError reports a specific invalid schedule field. Each invalid
// condition carries its own Field/Reason so operators get an actionable
// message instead of a generic failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid schedule: %s: %s", e.Field, e.Reason)
}

// Validate checks the schedule invariants. It returns a *ValidationError
// describing the first violated rule, or nil.
func (s *Schedule) Validate() error {
	if len(s.Accounts) == 0 {
		return &ValidationError{Field: "accounts", Reason: "at least one target account required"}
	}
	for _, id := range s.Accounts {
		if strings.TrimSpace(id) == "" {
			return &ValidationError{Field: "accounts", Reason: "empty account id"}
		}
	}

	switch s.Policy {
	case PolicyFixedTimes:
		if len(s.Times) == 0 {
			return &ValidationError{Field: "times", Reason: "at least one time of day required"}
		}
		if len(s.Times) > MaxFixedTimes {
			return &ValidationError{Field: "times", Reason: fmt.Sprintf("at most %d times of day allowed, got %d", MaxFixedTimes, len(s.Times))}
		}
		for _, tm := range s.Times {
			if _, _, err := ParseHHMM(tm); err != nil {
				return &ValidationError{Field: "times", Reason: err.Error()}
			}
		}
	case PolicyInterval:
		if s.IntervalMinutes < MinIntervalMinutes || s.IntervalMinutes > MaxIntervalMinutes {
			return &ValidationError{
				Field:  "interval_minutes",
				Reason: fmt.Sprintf("must be between %d and %d, got %d", MinIntervalMinutes, MaxIntervalMinutes, s.IntervalMinutes),
			}
		}
	case PolicyRandomWindow:
		sh, sm, err := ParseHHMM(s.WindowStart)
		if err != nil {
			return &ValidationError{Field: "window_start", Reason: err.Error()}
		}
		eh, em, err := ParseHHMM(s.WindowEnd)
		if err != nil {
			return &ValidationError{Field: "window_end", Reason: err.Error()}
		}
		if eh*60+em <= sh*60+sm {
			return &ValidationError{Field: "window_end", Reason: "window end must be after window start"}
		}
	default:
		return &ValidationError{Field: "policy", Reason: fmt.Sprintf("unknown policy %q", s.Policy)}
	}
	return nil
}

// ParseHHMM parses a "HH:MM" time-of-day string.
func ParseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
