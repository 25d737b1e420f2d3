package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ultron/internal/sandbox"
)

var treeMaxEntries int

// treeCmd prints the directory index the agent is seeded with
var treeCmd = &cobra.Command{
	Use:   "tree [root]",
	Short: "Print the directory index of a project root",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		resolver, err := sandbox.NewResolver(root)
		if err != nil {
			return err
		}

		limit := cfg.Tools.TreeMaxEntries
		if treeMaxEntries > 0 {
			limit = treeMaxEntries
		}
		tree, err := resolver.Tree(sandbox.TreeOptions{MaxEntries: limit, Exclude: cfg.Tools.ExcludedDirs})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tree)
		return nil
	},
}

func init() {
	treeCmd.Flags().IntVar(&treeMaxEntries, "max-entries", 0, "Maximum entries to list (default: tools.tree_max_entries)")
}
