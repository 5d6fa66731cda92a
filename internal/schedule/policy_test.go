package schedule

import (
	"testing"
	"time"
)

func TestNextTimesFixedRollsPassedSlots(t *testing.T) {
	s := &Schedule{
		Policy:   PolicyFixedTimes,
		Times:    []string{"09:00", "18:00"},
		Accounts: []string{"a"},
	}
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	got, err := NextTimes(s, now, time.UTC)
	if err != nil {
		t.Fatalf("NextTimes: %v", err)
	}
	want := []time.Time{
		time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC), // today 18:00
		time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),  // tomorrow 09:00
	}
	if len(got) != len(want) {
		t.Fatalf("want %d times, got %v", len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("slot %d: want %v, got %v", i, want[i], got[i])
		}
	}
}

func TestNextTimesFixedSorted(t *testing.T) {
	s := &Schedule{
		Policy:   PolicyFixedTimes,
		Times:    []string{"23:00", "01:00", "12:00"},
		Accounts: []string{"a"},
	}
	now := time.Date(2026, 3, 10, 13, 30, 0, 0, time.UTC)
	got, err := NextTimes(s, now, time.UTC)
	if err != nil {
		t.Fatalf("NextTimes: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Before(got[i-1]) {
			t.Fatalf("not sorted ascending: %v", got)
		}
	}
	for _, ts := range got {
		if !ts.After(now) {
			t.Fatalf("pending time not in the future: %v", ts)
		}
	}
}

func TestNextTimesInterval(t *testing.T) {
	s := &Schedule{Policy: PolicyInterval, IntervalMinutes: 30, Accounts: []string{"a"}}
	fired := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	got, err := NextTimes(s, fired, time.UTC)
	if err != nil {
		t.Fatalf("NextTimes: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want single next time, got %v", got)
	}
	if want := fired.Add(30 * time.Minute); !got[0].Equal(want) {
		t.Fatalf("want %v, got %v", want, got[0])
	}
}

func TestNextTimesDeterministicAcrossRestart(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	for _, s := range []*Schedule{
		{Policy: PolicyFixedTimes, Times: []string{"09:00", "12:30", "18:00"}, Accounts: []string{"a"}},
		{Policy: PolicyInterval, IntervalMinutes: 90, Accounts: []string{"a"}},
	} {
		first, err := NextTimes(s, now, time.UTC)
		if err != nil {
			t.Fatalf("first NextTimes: %v", err)
		}
		// Same schedule reloaded after a simulated restart.
		second, err := NextTimes(s, now, time.UTC)
		if err != nil {
			t.Fatalf("second NextTimes: %v", err)
		}
		if len(first) != len(second) {
			t.Fatalf("set size changed across recompute")
		}
		for i := range first {
			if !first[i].Equal(second[i]) {
				t.Fatalf("policy %s not deterministic: %v vs %v", s.Policy, first[i], second[i])
			}
		}
	}
}

func TestNextTimesRandomWindowBeforeWindow(t *testing.T) {
	s := &Schedule{Policy: PolicyRandomWindow, WindowStart: "21:00", WindowEnd: "23:00", Accounts: []string{"a"}}
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		got, err := NextTimes(s, now, time.UTC)
		if err != nil {
			t.Fatalf("NextTimes: %v", err)
		}
		start := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
		end := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
		if got[0].Before(start) || !got[0].Before(end) {
			t.Fatalf("instant %v outside window [%v, %v)", got[0], start, end)
		}
	}
}

func TestNextTimesRandomWindowMidWindowDrawsRemainder(t *testing.T) {
	s := &Schedule{Policy: PolicyRandomWindow, WindowStart: "21:00", WindowEnd: "23:00", Accounts: []string{"a"}}
	// Simulated restart mid-window with no prior instant recorded.
	now := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		got, err := NextTimes(s, now, time.UTC)
		if err != nil {
			t.Fatalf("NextTimes: %v", err)
		}
		end := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
		if !got[0].After(now) || !got[0].Before(end) {
			t.Fatalf("instant %v outside remaining window (%v, %v)", got[0], now, end)
		}
	}
}

func TestNextTimesRandomWindowAfterWindowRollsToTomorrow(t *testing.T) {
	s := &Schedule{Policy: PolicyRandomWindow, WindowStart: "09:00", WindowEnd: "10:00", Accounts: []string{"a"}}
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	got, err := NextTimes(s, now, time.UTC)
	if err != nil {
		t.Fatalf("NextTimes: %v", err)
	}
	start := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	if got[0].Before(start) || !got[0].Before(end) {
		t.Fatalf("instant %v outside tomorrow's window [%v, %v)", got[0], start, end)
	}
}

func TestNextTimesAfterFireRollsToTomorrow(t *testing.T) {
	s := &Schedule{Policy: PolicyRandomWindow, WindowStart: "10:00", WindowEnd: "12:00", Accounts: []string{"a"}}
	// Fired at 10:30; the recompute happens moments later, still mid-window.
	fired := time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)
	now := fired.Add(5 * time.Second)

	start := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		got, err := NextTimesAfterFire(s, now, fired, time.UTC)
		if err != nil {
			t.Fatalf("NextTimesAfterFire: %v", err)
		}
		if got[0].Before(start) || !got[0].Before(end) {
			t.Fatalf("instant %v re-drawn outside tomorrow's window [%v, %v)", got[0], start, end)
		}
	}
}

func TestNextTimesAfterFirePreviousDayDrawsToday(t *testing.T) {
	s := &Schedule{Policy: PolicyRandomWindow, WindowStart: "10:00", WindowEnd: "12:00", Accounts: []string{"a"}}
	fired := time.Date(2026, 3, 9, 11, 15, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	got, err := NextTimesAfterFire(s, now, fired, time.UTC)
	if err != nil {
		t.Fatalf("NextTimesAfterFire: %v", err)
	}
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if got[0].Before(start) || !got[0].Before(end) {
		t.Fatalf("instant %v outside today's window [%v, %v)", got[0], start, end)
	}
}

func TestNextTimesAfterFireZeroFireDelegates(t *testing.T) {
	s := &Schedule{Policy: PolicyRandomWindow, WindowStart: "10:00", WindowEnd: "12:00", Accounts: []string{"a"}}
	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)

	got, err := NextTimesAfterFire(s, now, time.Time{}, time.UTC)
	if err != nil {
		t.Fatalf("NextTimesAfterFire: %v", err)
	}
	end := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if !got[0].After(now) || !got[0].Before(end) {
		t.Fatalf("instant %v outside remaining window (%v, %v)", got[0], now, end)
	}
}

func TestNextTimesAfterFireOtherPoliciesUnaffected(t *testing.T) {
	s := &Schedule{Policy: PolicyInterval, IntervalMinutes: 30, Accounts: []string{"a"}}
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	fired := now.Add(-time.Minute)

	got, err := NextTimesAfterFire(s, now, fired, time.UTC)
	if err != nil {
		t.Fatalf("NextTimesAfterFire: %v", err)
	}
	if want := now.Add(30 * time.Minute); !got[0].Equal(want) {
		t.Fatalf("interval next = %v, want %v", got[0], want)
	}
}
