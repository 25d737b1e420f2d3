package shell

import (
	"fmt"
	"strings"
)

// CrashBanner is appended when a crash signature was found in stderr.
const CrashBanner = "*** POTENTIAL CRASH DETECTED in STDERR. Analyze the output carefully. ***"

// Format renders a result as the observation text the model reads:
//
//	Exit Code: N
//	--- STDOUT ---
//	...
//	--- STDERR ---
//	...
//
//	*** POTENTIAL CRASH DETECTED ... ***
//
// Empty streams are omitted. A timed-out result leads with a timeout line
// instead of an exit code.
func Format(r *Result) string {
	var sb strings.Builder
	if r.TimedOut {
		fmt.Fprintf(&sb, "Error: Command timed out after %d seconds. It may be a long-running process or it may have hung.\n",
			int(r.Timeout.Seconds()))
	} else {
		fmt.Fprintf(&sb, "Exit Code: %d\n", r.ExitCode)
	}

	writeStream(&sb, "STDOUT", r.Stdout, r.StdoutDropped)
	writeStream(&sb, "STDERR", r.Stderr, r.StderrDropped)

	if r.CrashSignatureDetected {
		sb.WriteString("\n" + CrashBanner)
	}
	return strings.TrimSpace(sb.String())
}

func writeStream(sb *strings.Builder, name, s string, dropped int) {
	s = strings.TrimSpace(s)
	if s == "" && dropped == 0 {
		return
	}
	fmt.Fprintf(sb, "--- %s ---\n%s\n", name, s)
	if dropped > 0 {
		fmt.Fprintf(sb, "[%s truncated: %d bytes dropped]\n", strings.ToLower(name), dropped)
	}
}
