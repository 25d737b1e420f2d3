package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"ultron/internal/logging"
	"ultron/internal/tools"
)

// ReadFileTool returns a tool for reading file contents.
func ReadFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "read_file_content",
		Description: "Read the full text content of a single file. The path must be relative to the project root.",
		Category:    tools.CategoryRead,
		Priority:    90,
		Execute:     executeReadFile,
		Schema: tools.ToolSchema{
			Required: []string{"file_path"},
			Properties: map[string]tools.Property{
				"file_path": {
					Type:        "string",
					Description: "File path relative to the project root",
					Path:        true,
				},
			},
		},
	}
}

func executeReadFile(ctx context.Context, inv *tools.Invocation) (string, error) {
	p := inv.Path("file_path")
	sb := inv.Env.Sandbox

	logging.ToolsDebug("read_file_content: path=%s", p.Input)

	info, err := os.Stat(p.Resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || isNotDir(err) {
			return sb.DescribeMissing(p), nil
		}
		return "", fmt.Errorf("could not read file '%s': %w", p.Input, err)
	}
	if info.IsDir() {
		return sb.DescribeDirectory(p), nil
	}

	if cached, ok := inv.Env.Files.Get(p.Resolved, info); ok {
		logging.ToolsDebug("read_file_content: cache hit %s", p.Input)
		return cached, nil
	}

	content, truncated, err := readCapped(p.Resolved, inv.Env.Limits.MaxReadBytes)
	if err != nil {
		return "", fmt.Errorf("could not read file '%s': %w", p.Input, err)
	}
	if looksBinary(content) {
		return fmt.Sprintf("'%s' appears to be a binary file (%d bytes); its content is not shown.", p.Input, info.Size()), nil
	}

	result := decodeLenient(content)
	if truncated {
		result += fmt.Sprintf("\n... [file truncated: showing first %d of %d bytes]", len(content), info.Size())
	}

	inv.Env.Files.Put(p.Resolved, info, result)
	logging.Tools("read_file_content completed: %s (%d bytes)", p.Input, len(result))
	return result, nil
}

// WriteFileTool returns a tool for writing content to a file.
func WriteFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "write_to_file",
		Description: "Write content to a file inside the project, creating it and any parent directories if needed. Use this for proof-of-concept scripts and test harnesses.",
		Category:    tools.CategoryWrite,
		Priority:    60,
		Execute:     executeWriteFile,
		Schema: tools.ToolSchema{
			Required: []string{"file_path", "content"},
			Properties: map[string]tools.Property{
				"file_path": {
					Type:        "string",
					Description: "File path relative to the project root",
					Path:        true,
				},
				"content": {
					Type:        "string",
					Description: "The content to write",
				},
			},
		},
	}
}

func executeWriteFile(ctx context.Context, inv *tools.Invocation) (string, error) {
	p := inv.Path("file_path")
	content := inv.String("content")

	logging.ToolsDebug("write_to_file: path=%s, size=%d", p.Input, len(content))

	if p.Resolved == inv.Env.Sandbox.Root() {
		return "", fmt.Errorf("'%s' is the project root, not a file", p.Input)
	}
	if info, err := os.Stat(p.Resolved); err == nil && info.IsDir() {
		return "", fmt.Errorf("'%s' is a directory, not a file", p.Input)
	}

	if err := os.MkdirAll(filepath.Dir(p.Resolved), 0755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(p.Resolved, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	inv.Env.Files.Invalidate(p.Resolved)

	rel := inv.Rel(p.Resolved)
	logging.Tools("write_to_file completed: %s (%d bytes)", rel, len(content))
	return fmt.Sprintf("Successfully wrote %d bytes to '%s'.", len(content), rel), nil
}

// readCapped reads at most limit bytes. A non-positive limit reads everything.
func readCapped(path string, limit int) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	if limit <= 0 {
		data, err := io.ReadAll(f)
		return data, false, err
	}
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		return nil, false, err
	}
	if len(data) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// looksBinary checks the first 8000 bytes for NUL, the same heuristic git uses.
func looksBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

// decodeLenient replaces invalid UTF-8 sequences instead of failing.
func decodeLenient(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}
