package watchdog

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// killGracePeriod is how long a process group gets between SIGTERM and
// SIGKILL after its deadline fires. Subprocesses that trap and ignore
// SIGTERM are forcibly killed at the group level once it elapses.
const killGracePeriod = 10 * time.Second

// Result is the captured outcome of one subprocess invocation.
type Result struct {
	// Status is the subprocess exit code; -1 when the process was
	// terminated by a signal or never ran.
	Status int

	// Log is the whole combined stdout+stderr output, split into lines.
	// Output is captured, not streamed.
	Log []string

	// TimedOut is true when the subprocess was terminated because ctx's
	// deadline fired.
	TimedOut bool
}

// Run executes name with args in dir under ctx, capturing combined output
// whole. Extra environment entries (NAME=value) are appended to the
// inherited environment.
//
// The command runs in its own process group so that cancellation reaches
// the command and all its children: a parallel make spawns a tree of
// compilers, and signalling only the leader would leave orphans holding
// the captured-output pipe open. On cancellation the group receives
// SIGTERM; a goroutine escalates to SIGKILL after the grace period if the
// group has not exited. cmd.WaitDelay bounds the wait for stragglers that
// inherited the output pipe.
func Run(ctx context.Context, dir string, env []string, name string, args ...string) (Result, error) {
	var buf bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 2 * killGracePeriod
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	cmd.Cancel = func() error {
		processGroupID := -cmd.Process.Pid
		if err := syscall.Kill(processGroupID, syscall.SIGTERM); err != nil {
			// SIGTERM failed (process group already gone), escalate.
			return syscall.Kill(processGroupID, syscall.SIGKILL)
		}
		go func() {
			time.Sleep(killGracePeriod)
			// Best-effort: the process group may have already exited.
			// ESRCH from a dead process group is harmless.
			_ = syscall.Kill(processGroupID, syscall.SIGKILL)
		}()
		return nil
	}

	err := cmd.Run()
	res := Result{
		Status:   0,
		Log:      splitLines(buf.String()),
		TimedOut: ctx.Err() == context.DeadlineExceeded,
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.Status = exitErr.ExitCode()
		return res, nil
	}

	// Non-exit errors: missing binary, context cancellation before
	// start, wait failure.
	res.Status = -1
	return res, err
}

// splitLines splits captured output into lines, dropping a single trailing
// empty line produced by a final newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
