package schedule

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
)

// NextTimes computes the pending action-time set for a schedule, strictly
// after now, sorted ascending.
//
//   - PolicyFixedTimes: one entry per time slot; a slot already passed
//     today rolls to the same time tomorrow.
//   - PolicyInterval: a single entry at now + interval.
//   - PolicyRandomWindow: a single entry drawn uniformly from what remains
//     of today's window, or from tomorrow's full window once today's has
//     closed. Restarting mid-window therefore draws a fresh instant for
//     the remainder of the window.
//
// Fixed-time and interval results are deterministic for a given now, so a
// restart that reloads the same schedule recomputes the same set.
func NextTimes(s *Schedule, now time.Time, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	switch s.Policy {
	case PolicyFixedTimes:
		out := make([]time.Time, 0, len(s.Times))
		for _, tm := range s.Times {
			sched, err := slotSchedule(tm, loc)
			if err != nil {
				return nil, err
			}
			out = append(out, sched.Next(now))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
		return out, nil

	case PolicyInterval:
		every := cron.Every(time.Duration(s.IntervalMinutes) * time.Minute)
		return []time.Time{every.Next(now)}, nil

	case PolicyRandomWindow:
		t, err := drawWindowInstant(s, now, loc)
		if err != nil {
			return nil, err
		}
		return []time.Time{t}, nil
	}
	return nil, fmt.Errorf("schedule: unknown policy %q", s.Policy)
}

// NextTimesAfterFire recomputes the pending set right after an action fired
// at firedAt. The random-window policy draws at most one instant per day, so
// its draw base is pushed past the fired day's window close; a recompute
// inside the window then lands in tomorrow's window instead of re-drawing
// from today's remainder. Other policies are unaffected and delegate to
// NextTimes, as does a zero firedAt (no fire recorded yet).
func NextTimesAfterFire(s *Schedule, now, firedAt time.Time, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if s.Policy != PolicyRandomWindow || firedAt.IsZero() {
		return NextTimes(s, now, loc)
	}
	eh, em, err := ParseHHMM(s.WindowEnd)
	if err != nil {
		return nil, err
	}
	day := firedAt.In(loc)
	closed := time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, loc)
	if now.Before(closed) {
		now = closed
	}
	return NextTimes(s, now, loc)
}

// slotSchedule compiles one "HH:MM" daily slot into a cron schedule bound
// to loc, so the daily roll-over (including DST transitions) is handled by
// the cron library rather than hand-rolled date math.
func slotSchedule(hhmm string, loc *time.Location) (cron.Schedule, error) {
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		return nil, err
	}
	spec := fmt.Sprintf("%d %d * * *", m, h)
	if name := loc.String(); name != "" && name != "Local" {
		spec = "CRON_TZ=" + name + " " + spec
	}
	return cron.ParseStandard(spec)
}

// drawWindowInstant picks the next random-window fire time.
func drawWindowInstant(s *Schedule, now time.Time, loc *time.Location) (time.Time, error) {
	sh, sm, err := ParseHHMM(s.WindowStart)
	if err != nil {
		return time.Time{}, err
	}
	eh, em, err := ParseHHMM(s.WindowEnd)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), sh, sm, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), eh, em, 0, 0, loc)

	// Today's window is over (or too little of it is left to land strictly
	// after now): use tomorrow's.
	if !now.Before(end.Add(-time.Second)) {
		start = start.AddDate(0, 0, 1)
		end = end.AddDate(0, 0, 1)
	} else if now.After(start) {
		// Mid-window: draw from the remainder.
		start = now
	}

	span := end.Sub(start)
	if span <= time.Second {
		return end.Add(-time.Second), nil
	}
	// Offset in [1s, span) keeps the instant strictly inside (start, end).
	off := time.Duration(rand.Int63n(int64(span-time.Second))) + time.Second
	return start.Add(off), nil
}
