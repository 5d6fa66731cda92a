package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"reelpost/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("want (nil, nil) for disabled history, got (%v, %v)", st, err)
	}
	st, err = Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("want (nil, nil) for driver none, got (%v, %v)", st, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver must error")
	}
}

func testStore(t *testing.T, driver string) Store {
	t.Helper()
	ext := ".jsonl"
	if driver == "sqlite" {
		ext = ".db"
	}
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "history"+ext)}, logx.Nop())
	if err != nil {
		t.Fatalf("Open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestAppendRecent(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			st := testStore(t, driver)
			ctx := context.Background()
			base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

			entries := []Entry{
				{At: base, Cycle: "c1", Account: "alice", MediaCount: 3, OK: true, TookMS: 1500},
				{At: base.Add(time.Minute), Cycle: "c1", Account: "bob", MediaCount: 3, OK: false, Reason: "login failed", TookMS: 900},
				{At: base.Add(2 * time.Minute), Cycle: "c2", Account: "alice", MediaCount: 2, OK: true, TookMS: 1200},
			}
			for _, e := range entries {
				if err := st.Append(ctx, e); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}

			got, err := st.Recent(ctx, 2)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("want 2 entries, got %d", len(got))
			}
			// Newest first.
			if got[0].Cycle != "c2" || got[1].Account != "bob" {
				t.Fatalf("unexpected order: %+v", got)
			}
			if got[1].Reason != "login failed" || got[1].OK {
				t.Fatalf("failure not preserved: %+v", got[1])
			}
		})
	}
}

func TestRecentEmpty(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			st := testStore(t, driver)
			got, err := st.Recent(context.Background(), 10)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("want empty, got %v", got)
			}
		})
	}
}
