// Package shell provides the bounded shell execution tool.
//
// Commands run through the system shell in their own process group with a
// hard wall-clock timeout; on expiry the whole group is killed. Output is
// captured with a per-stream cap, decoded leniently, and scanned for crash
// signatures (sanitizer banners, segfaults, runtime panics).
//
// Tools:
//   - execute_shell_command: Run a command inside the sandbox root
package shell
