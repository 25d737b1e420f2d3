package core

import (
	"context"
	"fmt"
	"os"

	"ultron/internal/logging"
	"ultron/internal/sandbox"
	"ultron/internal/tools"
)

// DirectoryTreeTool returns a tool that re-indexes the project or a subdirectory.
func DirectoryTreeTool() *tools.Tool {
	return &tools.Tool{
		Name:        "get_directory_tree",
		Description: "Show the directory tree of the project or of one subdirectory. Hidden directories and caches are omitted.",
		Category:    tools.CategoryRead,
		Priority:    65,
		Execute:     executeDirectoryTree,
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "Directory relative to the project root (default: project root)",
					Path:        true,
				},
			},
		},
	}
}

func executeDirectoryTree(ctx context.Context, inv *tools.Invocation) (string, error) {
	sb := inv.Env.Sandbox
	target := sb
	if p, ok := inv.Paths["path"]; ok && p.Resolved != sb.Root() {
		if info, err := os.Stat(p.Resolved); err == nil && !info.IsDir() {
			return "", fmt.Errorf("'%s' is a file, not a directory; use read_file_content to view it", p.Input)
		}
		sub, err := sandbox.NewResolver(p.Resolved)
		if err != nil {
			return sb.DescribeMissing(p), nil
		}
		target = sub
	}

	out, err := target.Tree(sandbox.TreeOptions{
		MaxEntries: inv.Env.Limits.TreeMaxEntries,
		Exclude:    inv.Env.Limits.ExcludedDirs,
	})
	if err != nil {
		return "", fmt.Errorf("could not index directory: %w", err)
	}
	logging.ToolsDebug("get_directory_tree: %s", sb.Rel(target.Root()))
	return out, nil
}
