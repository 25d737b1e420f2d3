package core

import (
	"ultron/internal/tools"
)

// RegisterAll registers the file and static scan tools with the given registry.
func RegisterAll(registry *tools.Registry) error {
	allTools := []*tools.Tool{
		// File operations
		ReadFileTool(),
		WriteFileTool(),
		DirectoryTreeTool(),

		// Static scans
		SearchPatternTool(),
		SearchCodebaseTool(),
		ListFunctionsTool(),
		TaintTool(),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}
