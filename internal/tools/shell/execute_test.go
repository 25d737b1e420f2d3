//go:build !windows

package shell

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ultron/internal/sandbox"
	"ultron/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// EXECUTE
// =============================================================================

func TestExecute_CapturesStreams(t *testing.T) {
	t.Parallel()

	res, err := Execute(context.Background(), "echo out; echo err >&2; exit 3", t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.False(t, res.TimedOut)
	assert.False(t, res.CrashSignatureDetected)
}

func TestExecute_WorkingDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), nil, 0644))

	res, err := Execute(context.Background(), "ls", dir, 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "marker")
}

func TestExecute_TimeoutKillsProcessGroup(t *testing.T) {
	t.Parallel()

	start := time.Now()
	// The background sleep keeps stdout open; only a group kill ends it promptly.
	res, err := Execute(context.Background(), "echo started; sleep 30 & sleep 30", t.TempDir(), 300*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.Stdout, "started")
	assert.Less(t, elapsed, 300*time.Millisecond+waitDelay+time.Second)
}

func TestExecute_CrashSignature(t *testing.T) {
	t.Parallel()

	res, err := Execute(context.Background(), `echo "==1==ERROR: AddressSanitizer: heap-buffer-overflow" >&2; exit 1`, t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, res.CrashSignatureDetected)

	res, err = Execute(context.Background(), `echo "Segmentation fault" ; exit 0`, t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	assert.False(t, res.CrashSignatureDetected, "stdout is not scanned")
}

func TestExecute_SignalExitCode(t *testing.T) {
	t.Parallel()

	res, err := Execute(context.Background(), "kill -SEGV $$", t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, -11, res.ExitCode)
}

func TestExecute_LenientDecoding(t *testing.T) {
	t.Parallel()

	res, err := Execute(context.Background(), `printf 'ok\377\376done'`, t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Stdout, "ok"))
	assert.True(t, strings.HasSuffix(res.Stdout, "done"))
}

func TestExecute_OutputCap(t *testing.T) {
	t.Parallel()

	res, err := ExecuteWithOptions(context.Background(), "head -c 1000 /dev/zero | tr '\\0' a", t.TempDir(), 5*time.Second, Options{MaxOutputBytes: 100})
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 100)
	assert.Equal(t, 900, res.StdoutDropped)
}

func TestExecute_LaunchError(t *testing.T) {
	t.Parallel()

	_, err := Execute(context.Background(), "true", filepath.Join(t.TempDir(), "missing"), time.Second)
	assert.True(t, errors.Is(err, ErrLaunch))
}

// =============================================================================
// FORMAT
// =============================================================================

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  Result
		want string
	}{
		{
			name: "exit code only",
			res:  Result{ExitCode: 0},
			want: "Exit Code: 0",
		},
		{
			name: "both streams",
			res:  Result{ExitCode: 1, Stdout: "  hello\n", Stderr: "oops\n"},
			want: "Exit Code: 1\n--- STDOUT ---\nhello\n--- STDERR ---\noops",
		},
		{
			name: "crash",
			res:  Result{ExitCode: 134, Stderr: "panic: boom", CrashSignatureDetected: true},
			want: "Exit Code: 134\n--- STDERR ---\npanic: boom\n\n" + CrashBanner,
		},
		{
			name: "timeout",
			res:  Result{TimedOut: true, Timeout: 120 * time.Second, Stdout: "partial"},
			want: "Error: Command timed out after 120 seconds. It may be a long-running process or it may have hung.\n--- STDOUT ---\npartial",
		},
		{
			name: "dropped",
			res:  Result{Stdout: "abc", StdoutDropped: 10},
			want: "Exit Code: 0\n--- STDOUT ---\nabc\n[stdout truncated: 10 bytes dropped]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(&tt.res))
		})
	}
}

// =============================================================================
// TOOL
// =============================================================================

func TestExecuteShellTool(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	resolver, err := sandbox.NewResolver(root)
	require.NoError(t, err)

	reg := tools.NewRegistry()
	require.NoError(t, RegisterAll(reg))
	env := tools.NewEnv("shell-test", resolver, tools.DefaultLimits())

	obs := reg.Dispatch(context.Background(), "execute_shell_command", map[string]any{
		"command":           "pwd",
		"working_directory": "sub",
	}, env)
	require.False(t, obs.Failed, obs.Text)
	assert.Equal(t, "Exit Code: 0\n--- STDOUT ---\n"+filepath.Join(resolver.Root(), "sub"), obs.Text)

	obs = reg.Dispatch(context.Background(), "execute_shell_command", map[string]any{
		"command":           "pwd",
		"working_directory": "../",
	}, env)
	assert.True(t, obs.Failed)

	env.Limits.ShellTimeout = 200 * time.Millisecond
	obs = reg.Dispatch(context.Background(), "execute_shell_command", map[string]any{"command": "sleep 10"}, env)
	assert.False(t, obs.Failed)
	assert.True(t, strings.HasPrefix(obs.Text, "Error: Command timed out"))
}
