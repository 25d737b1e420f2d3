package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"ultron/internal/logging"
)

// DefaultTimeout applies when Execute is called with a non-positive timeout.
const DefaultTimeout = 120 * time.Second

// DefaultMaxOutputBytes caps each captured stream.
const DefaultMaxOutputBytes = 50000

// waitDelay bounds how long Wait blocks on pipes held open by processes
// that escaped the group kill.
const waitDelay = 2 * time.Second

// ErrLaunch is returned when the subprocess could not be started.
var ErrLaunch = errors.New("failed to launch command")

// CrashSignatures are stderr substrings that suggest the process faulted.
var CrashSignatures = []string{
	"AddressSanitizer",
	"Segmentation fault",
	"panic:",
	"UndefinedBehaviorSanitizer",
	"ThreadSanitizer",
	"LeakSanitizer",
	"SIGSEGV",
	"core dumped",
	"stack smashing detected",
	"Traceback (most recent call last)",
}

// Result is the outcome of one command.
type Result struct {
	// ExitCode is the process exit status. A process killed by a signal
	// reports the negated signal number. Meaningless when TimedOut is set.
	ExitCode int

	Stdout string
	Stderr string

	// TimedOut is set when the wall-clock timeout killed the process group.
	TimedOut bool

	// CrashSignatureDetected is a heuristic: stderr contained a CrashSignatures entry.
	CrashSignatureDetected bool

	// StdoutDropped and StderrDropped count bytes discarded past the cap.
	StdoutDropped int
	StderrDropped int

	Timeout  time.Duration
	Duration time.Duration
}

// Options tune Execute beyond the required arguments.
type Options struct {
	MaxOutputBytes int
	Env            []string
}

// Execute runs command through the system shell in dir and waits for it
// to finish or for timeout to elapse. On timeout the whole process group is
// killed and the partial output is returned with TimedOut set. The only
// error returned is a wrapped ErrLaunch.
func Execute(ctx context.Context, command, dir string, timeout time.Duration) (*Result, error) {
	return ExecuteWithOptions(ctx, command, dir, timeout, Options{})
}

// ExecuteWithOptions is Execute with explicit limits.
func ExecuteWithOptions(ctx context.Context, command, dir string, timeout time.Duration, opts Options) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := opts.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}

	logging.ShellDebug("execute: cmd=%q, dir=%s, timeout=%v", command, dir, timeout)

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	cmd.Dir = dir
	cmd.Env = os.Environ()
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Env, opts.Env...)
	}
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	stdout := &cappedBuffer{max: limit}
	stderr := &cappedBuffer{max: limit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		logging.Get(logging.CategoryShell).Error("launch failed: %q - %v", command, err)
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	res := &Result{Timeout: timeout}
	var waitErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		res.TimedOut = true
		killProcessGroup(cmd)
		<-done
	case <-ctx.Done():
		// Treated like a timeout: the process did not finish in the time allowed.
		res.TimedOut = true
		killProcessGroup(cmd)
		<-done
	}
	res.Duration = time.Since(start)

	res.Stdout, res.StdoutDropped = stdout.String(), stdout.dropped
	res.Stderr, res.StderrDropped = stderr.String(), stderr.dropped

	if res.TimedOut {
		res.ExitCode = -1
		logging.Shell("command timed out after %v: %q", timeout, command)
	} else {
		res.ExitCode = exitCode(cmd, waitErr)
	}

	res.CrashSignatureDetected = DetectCrash(res.Stderr)
	if res.CrashSignatureDetected {
		logging.Shell("crash signature detected in stderr: %q", command)
	}

	logging.ShellDebug("execute completed: exit=%d timed_out=%v dur=%v stdout=%dB stderr=%dB",
		res.ExitCode, res.TimedOut, res.Duration, len(res.Stdout), len(res.Stderr))
	return res, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState == nil {
		return -1
	}
	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return -1
		}
	}
	return cmd.ProcessState.ExitCode()
}

// DetectCrash reports whether s contains any crash signature.
func DetectCrash(s string) bool {
	for _, sig := range CrashSignatures {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}

// cappedBuffer keeps the first max bytes written and counts the rest.
// Writes never fail, so the child never sees EPIPE because of the cap.
type cappedBuffer struct {
	mu      sync.Mutex
	buf     []byte
	max     int
	dropped int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.max - len(b.buf)
	if room >= len(p) {
		b.buf = append(b.buf, p...)
	} else {
		if room > 0 {
			b.buf = append(b.buf, p[:room]...)
		}
		b.dropped += len(p) - max(room, 0)
	}
	return len(p), nil
}

// String decodes leniently: invalid UTF-8 is replaced, never an error.
func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.ToValidUTF8(string(b.buf), "�")
}
