package schedule

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"reelpost/internal/secret"
	"reelpost/pkg/logx"
)

func validFixed() *Schedule {
	return &Schedule{
		Policy:   PolicyFixedTimes,
		Times:    []string{"09:00", "18:00"},
		Accounts: []string{"alice"},
		Caption:  "daily post",
	}
}

func TestValidateDistinctErrors(t *testing.T) {
	cases := []struct {
		name  string
		mod   func(*Schedule)
		field string
	}{
		{"no accounts", func(s *Schedule) { s.Accounts = nil }, "accounts"},
		{"no times", func(s *Schedule) { s.Times = nil }, "times"},
		{"too many times", func(s *Schedule) { s.Times = []string{"01:00", "02:00", "03:00", "04:00"} }, "times"},
		{"bad time format", func(s *Schedule) { s.Times = []string{"25:99"} }, "times"},
		{"unknown policy", func(s *Schedule) { s.Policy = "hourly" }, "policy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validFixed()
			tc.mod(s)
			err := s.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("want field %q, got %q (%v)", tc.field, verr.Field, verr)
			}
		})
	}
}

func TestValidateIntervalBounds(t *testing.T) {
	for _, minutes := range []int{0, -5, 601, 10000} {
		s := &Schedule{Policy: PolicyInterval, IntervalMinutes: minutes, Accounts: []string{"a"}}
		var verr *ValidationError
		if err := s.Validate(); !errors.As(err, &verr) || verr.Field != "interval_minutes" {
			t.Fatalf("interval %d: want interval_minutes ValidationError, got %v", minutes, err)
		}
	}
	s := &Schedule{Policy: PolicyInterval, IntervalMinutes: 30, Accounts: []string{"a"}}
	if err := s.Validate(); err != nil {
		t.Fatalf("valid interval rejected: %v", err)
	}
}

func TestValidateWindow(t *testing.T) {
	s := &Schedule{Policy: PolicyRandomWindow, WindowStart: "21:00", WindowEnd: "20:00", Accounts: []string{"a"}}
	var verr *ValidationError
	if err := s.Validate(); !errors.As(err, &verr) || verr.Field != "window_end" {
		t.Fatalf("want window_end ValidationError, got %v", err)
	}
	s.WindowEnd = "23:30"
	if err := s.Validate(); err != nil {
		t.Fatalf("valid window rejected: %v", err)
	}
}

func TestValidationErrorMessageNamesField(t *testing.T) {
	s := validFixed()
	s.Times = nil
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "times") {
		t.Fatalf("message should name the field: %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cipher, err := secret.Open(filepath.Join(dir, "key"))
	if err != nil {
		t.Fatalf("secret.Open: %v", err)
	}
	return NewStore(filepath.Join(dir, "schedule.bin"), cipher, logx.Nop())
}

func TestStoreRoundTrip(t *testing.T) {
	st := newTestStore(t)

	in := validFixed()
	if err := st.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestStoreSaveReplaces(t *testing.T) {
	st := newTestStore(t)
	if err := st.Save(validFixed()); err != nil {
		t.Fatalf("Save fixed: %v", err)
	}
	second := &Schedule{Policy: PolicyInterval, IntervalMinutes: 45, Accounts: []string{"bob"}, Caption: "v2"}
	if err := st.Save(second); err != nil {
		t.Fatalf("Save interval: %v", err)
	}
	out, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Policy != PolicyInterval || len(out.Times) != 0 {
		t.Fatalf("old schedule leaked into replacement: %+v", out)
	}
}

func TestStoreLoadAbsent(t *testing.T) {
	st := newTestStore(t)
	s, err := st.Load()
	if err != nil || s != nil {
		t.Fatalf("want (nil, nil) for absent schedule, got (%v, %v)", s, err)
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	st := newTestStore(t)
	bad := validFixed()
	bad.Accounts = nil
	var verr *ValidationError
	if err := st.Save(bad); !errors.As(err, &verr) {
		t.Fatalf("want ValidationError from Save, got %v", err)
	}
	// Nothing must have been persisted.
	if s, err := st.Load(); err != nil || s != nil {
		t.Fatalf("invalid save must not persist, got (%v, %v)", s, err)
	}
}
