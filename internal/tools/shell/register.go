package shell

import (
	"context"
	"fmt"
	"os"

	"ultron/internal/logging"
	"ultron/internal/tools"
)

// ExecuteShellTool returns the bounded shell tool.
func ExecuteShellTool() *tools.Tool {
	return &tools.Tool{
		Name:        "execute_shell_command",
		Description: "Execute a shell command inside the project and return its exit code, stdout and stderr. Use it to compile, run tests, or run proof-of-concept exploits. Commands are killed after a fixed timeout.",
		Category:    tools.CategoryExec,
		Priority:    70,
		Execute:     executeShellCommand,
		Schema: tools.ToolSchema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The shell command to execute",
				},
				"working_directory": {
					Type:        "string",
					Description: "Directory to run in, relative to the project root (default: project root)",
					Path:        true,
				},
			},
		},
	}
}

func executeShellCommand(ctx context.Context, inv *tools.Invocation) (string, error) {
	command := inv.String("command")
	if command == "" {
		return "", fmt.Errorf("command must not be empty")
	}

	sb := inv.Env.Sandbox
	dir := sb.Root()
	if p, ok := inv.Paths["working_directory"]; ok {
		info, err := os.Stat(p.Resolved)
		if err != nil {
			return sb.DescribeMissing(p), nil
		}
		if !info.IsDir() {
			return "", fmt.Errorf("working_directory '%s' is not a directory", p.Input)
		}
		dir = p.Resolved
	}

	res, err := ExecuteWithOptions(ctx, command, dir, inv.Env.Limits.ShellTimeout, Options{
		MaxOutputBytes: inv.Env.Limits.ShellMaxOutputBytes,
	})
	if err != nil {
		return "", err
	}

	if res.CrashSignatureDetected {
		logging.AuditWithSession(inv.Env.SessionID).Log(logging.AuditEvent{
			EventType: logging.AuditCrashDetected,
			Target:    command,
			Success:   true,
		})
	}
	return Format(res), nil
}

// RegisterAll registers the shell tool with the given registry.
func RegisterAll(registry *tools.Registry) error {
	return registry.Register(ExecuteShellTool())
}
