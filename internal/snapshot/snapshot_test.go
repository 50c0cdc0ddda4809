package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vbwagner/client-code/internal/snapshot"
	"github.com/vbwagner/client-code/internal/types"
)

// ---------------------------------------------------------------------------
// Store tests
// ---------------------------------------------------------------------------

func TestStore_ReadAbsentFact(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, ok, err := store.Read(types.SnapStatus)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ok {
		t.Error("Read reported an absent fact as present")
	}
}

func TestStore_RecordThenRead(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Unix(1756600000, 0)
	if err := store.Record(types.SnapLastRun, want); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, ok, err := store.Read(types.SnapLastRun)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !ok {
		t.Fatal("fact not found after Record")
	}
	if !got.Equal(want) {
		t.Errorf("Read = %v, want %v", got, want)
	}

	// No leftover temp file from the atomic write.
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestStore_RecordOverwrites(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Record(types.SnapStatus, time.Unix(100, 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(types.SnapStatus, time.Unix(200, 0)); err != nil {
		t.Fatal(err)
	}
	got, _, err := store.Read(types.SnapStatus)
	if err != nil {
		t.Fatal(err)
	}
	if got.Unix() != 200 {
		t.Errorf("Read = %d, want 200", got.Unix())
	}
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Remove(types.SnapLastSuccess); err != nil {
		t.Errorf("Remove of absent fact: %v", err)
	}
	if err := store.Record(types.SnapLastSuccess, time.Unix(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove(types.SnapLastSuccess); err != nil {
		t.Errorf("Remove: %v", err)
	}
	if _, ok, _ := store.Read(types.SnapLastSuccess); ok {
		t.Error("fact still present after Remove")
	}
}

// ---------------------------------------------------------------------------
// Capture / Restore tests
// ---------------------------------------------------------------------------

func TestCaptureRestore_RoundTrip(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Record(types.SnapStatus, time.Unix(500, 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(types.SnapLastRun, time.Unix(400, 0)); err != nil {
		t.Fatal(err)
	}

	rb, err := store.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	// A run advances both facts, then delivery fails.
	if err := store.Record(types.SnapStatus, time.Unix(900, 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(types.SnapLastRun, time.Unix(900, 0)); err != nil {
		t.Fatal(err)
	}

	if err := store.Restore(rb); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	status, _, _ := store.Read(types.SnapStatus)
	lastRun, _, _ := store.Read(types.SnapLastRun)
	if status.Unix() != 500 || lastRun.Unix() != 400 {
		t.Errorf("after restore: status=%d lastRun=%d, want 500/400", status.Unix(), lastRun.Unix())
	}
}

func TestRestore_RemovesFactsThatDidNotExist(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// First run ever: no facts exist before the run.
	rb, err := store.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := store.Record(types.SnapStatus, time.Unix(900, 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(types.SnapLastRun, time.Unix(900, 0)); err != nil {
		t.Fatal(err)
	}

	if err := store.Restore(rb); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, ok, _ := store.Read(types.SnapStatus); ok {
		t.Error("status fact survived restore to pre-first-run state")
	}
	if _, ok, _ := store.Read(types.SnapLastRun); ok {
		t.Error("run.snap fact survived restore to pre-first-run state")
	}
}

func TestRestore_IdempotentAcrossRepeatedFailures(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Record(types.SnapStatus, time.Unix(500, 0)); err != nil {
		t.Fatal(err)
	}
	rb, err := store.Capture()
	if err != nil {
		t.Fatal(err)
	}

	// N consecutive delivery failures each restore the same state.
	for i := 0; i < 3; i++ {
		if err := store.Record(types.SnapStatus, time.Unix(int64(900+i), 0)); err != nil {
			t.Fatal(err)
		}
		if err := store.Restore(rb); err != nil {
			t.Fatalf("Restore #%d: %v", i, err)
		}
	}
	status, ok, _ := store.Read(types.SnapStatus)
	if !ok || status.Unix() != 500 {
		t.Errorf("status = %d (present=%v), want 500", status.Unix(), ok)
	}
}

// ---------------------------------------------------------------------------
// NeedsRun tests
// ---------------------------------------------------------------------------

func TestNeedsRun(t *testing.T) {
	now := time.Unix(1756600000, 0)

	tests := []struct {
		name            string
		in              snapshot.Input
		wantProceed     bool
		wantForced      bool
		wantFromScratch bool
	}{
		{
			name: "no prior run snapshot forces from scratch",
			in: snapshot.Input{
				HaveLastRun: false,
				Now:         now,
			},
			wantProceed:     true,
			wantForced:      true,
			wantFromScratch: true,
		},
		{
			name: "heartbeat elapsed forces from scratch",
			in: snapshot.Input{
				HaveLastRun: true,
				LastStatus:  now.Add(-169 * time.Hour),
				ForceEvery:  168,
				Now:         now,
			},
			wantProceed:     true,
			wantForced:      true,
			wantFromScratch: true,
		},
		{
			name: "heartbeat not yet elapsed does not force",
			in: snapshot.Input{
				HaveLastRun: true,
				LastStatus:  now.Add(-100 * time.Hour),
				ForceEvery:  168,
				Now:         now,
			},
		},
		{
			name: "heartbeat disabled by zero interval",
			in: snapshot.Input{
				HaveLastRun: true,
				LastStatus:  now.Add(-10000 * time.Hour),
				ForceEvery:  0,
				Now:         now,
			},
		},
		{
			name: "explicit force flag",
			in: snapshot.Input{
				HaveLastRun: true,
				LastStatus:  now,
				Force:       true,
				Now:         now,
			},
			wantProceed: true,
			wantForced:  true,
		},
		{
			name: "module demand",
			in: snapshot.Input{
				HaveLastRun:  true,
				LastStatus:   now,
				ModuleDemand: true,
				Now:          now,
			},
			wantProceed: true,
			wantForced:  true,
		},
		{
			name: "changed files proceed without force",
			in: snapshot.Input{
				HaveLastRun:  true,
				LastStatus:   now,
				ChangedFiles: []string{"src/backend/tcop/postgres.c"},
				Now:          now,
			},
			wantProceed: true,
		},
		{
			name: "nothing changed skips",
			in: snapshot.Input{
				HaveLastRun: true,
				LastStatus:  now,
				Now:         now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := snapshot.NeedsRun(tt.in)
			if got.Proceed != tt.wantProceed {
				t.Errorf("Proceed = %v, want %v (reason %q)", got.Proceed, tt.wantProceed, got.Reason)
			}
			if got.Forced != tt.wantForced {
				t.Errorf("Forced = %v, want %v", got.Forced, tt.wantForced)
			}
			if got.FromScratch != tt.wantFromScratch {
				t.Errorf("FromScratch = %v, want %v", got.FromScratch, tt.wantFromScratch)
			}
			if got.Reason == "" {
				t.Error("Reason must always be set")
			}
		})
	}
}
