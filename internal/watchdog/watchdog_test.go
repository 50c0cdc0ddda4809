package watchdog_test

import (
	"context"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vbwagner/client-code/internal/watchdog"
)

// ---------------------------------------------------------------------------
// Watchdog tests
// ---------------------------------------------------------------------------

func TestWatchdog_ExpiryCancelsContextAndFiresCallback(t *testing.T) {
	var fired atomic.Int32
	wd := watchdog.Arm(context.Background(), "test", 20*time.Millisecond, func(name string) {
		if name != "test" {
			t.Errorf("onExpire name = %q, want %q", name, "test")
		}
		fired.Add(1)
	})

	select {
	case <-wd.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled at deadline")
	}

	wd.Disarm()
	if !wd.Expired() {
		t.Error("Expired() = false after deadline fired")
	}
	if got := fired.Load(); got != 1 {
		t.Errorf("onExpire ran %d times, want 1", got)
	}
}

func TestWatchdog_DisarmRightAfterDeadlineStillRecordsExpiry(t *testing.T) {
	var fired atomic.Int32
	wd := watchdog.Arm(context.Background(), "overall", 5*time.Millisecond, func(string) {
		fired.Add(1)
	})

	// The usual deferred-Disarm path: the deadline fires and Disarm
	// follows immediately. The expiry must not be mistaken for a clean
	// disarm.
	<-wd.Context().Done()
	wd.Disarm()

	if !wd.Expired() {
		t.Error("Expired() = false after the deadline fired")
	}
	if got := fired.Load(); got != 1 {
		t.Errorf("onExpire ran %d times, want 1", got)
	}
}

func TestWatchdog_DisarmBeforeDeadline(t *testing.T) {
	var fired atomic.Int32
	wd := watchdog.Arm(context.Background(), "test", time.Hour, func(string) {
		fired.Add(1)
	})
	wd.Disarm()

	if wd.Expired() {
		t.Error("Expired() = true after a clean disarm")
	}
	if got := fired.Load(); got != 0 {
		t.Errorf("onExpire ran %d times after disarm, want 0", got)
	}
	// The disarm must have cancelled the context too.
	if wd.Context().Err() == nil {
		t.Error("context still live after Disarm")
	}
}

func TestWatchdog_DisarmIdempotent(t *testing.T) {
	wd := watchdog.Arm(context.Background(), "test", time.Hour, nil)
	wd.Disarm()
	wd.Disarm() // must not panic or hang
}

func TestWatchdog_ParentCancellationIsNotExpiry(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	var fired atomic.Int32
	wd := watchdog.Arm(parent, "test", time.Hour, func(string) {
		fired.Add(1)
	})
	cancel()

	select {
	case <-wd.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled with parent")
	}
	wd.Disarm()

	if wd.Expired() {
		t.Error("parent cancellation must not count as expiry")
	}
	if got := fired.Load(); got != 0 {
		t.Errorf("onExpire ran %d times on parent cancellation, want 0", got)
	}
}

// ---------------------------------------------------------------------------
// Run tests
// ---------------------------------------------------------------------------

func TestRun_CapturesCombinedOutput(t *testing.T) {
	res, err := watchdog.Run(context.Background(), t.TempDir(), nil,
		"sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != 0 {
		t.Errorf("Status = %d, want 0", res.Status)
	}
	if !reflect.DeepEqual(res.Log, []string{"out", "err"}) {
		t.Errorf("Log = %q, want [out err]", res.Log)
	}
	if res.TimedOut {
		t.Error("TimedOut = true for a fast command")
	}
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	res, err := watchdog.Run(context.Background(), t.TempDir(), nil,
		"sh", "-c", "exit 7")
	if err != nil {
		t.Fatalf("non-zero exit must not surface as error, got %v", err)
	}
	if res.Status != 7 {
		t.Errorf("Status = %d, want 7", res.Status)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	res, err := watchdog.Run(context.Background(), t.TempDir(), nil,
		"definitely-not-a-real-binary-1b9c")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if res.Status != -1 {
		t.Errorf("Status = %d, want -1", res.Status)
	}
}

func TestRun_RunsInDir(t *testing.T) {
	dir := t.TempDir()
	res, err := watchdog.Run(context.Background(), dir, nil, "pwd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Log) != 1 || res.Log[0] != dir {
		t.Errorf("pwd output = %q, want %q", res.Log, dir)
	}
}

func TestRun_ExtraEnv(t *testing.T) {
	res, err := watchdog.Run(context.Background(), t.TempDir(),
		[]string{"BF_PROBE=hello"}, "sh", "-c", "echo $BF_PROBE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Log) != 1 || res.Log[0] != "hello" {
		t.Errorf("env output = %q, want [hello]", res.Log)
	}
}

func TestRun_DeadlineKillsProcessGroup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, _ := watchdog.Run(ctx, t.TempDir(), nil, "sleep", "60")
	if elapsed := time.Since(start); elapsed > 30*time.Second {
		t.Fatalf("Run took %v, the group was not terminated promptly", elapsed)
	}
	if !res.TimedOut {
		t.Error("TimedOut = false for a deadline kill")
	}
	if res.Status == 0 {
		t.Error("Status = 0 for a killed process")
	}
}
