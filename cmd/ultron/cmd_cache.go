package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ultron/internal/config"
)

// cacheCmd groups result cache maintenance commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the review result cache",
}

// cachePruneCmd removes expired entries
var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired review results from the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		store, err := newStore(cfg)
		if err != nil {
			return err
		}
		removed, err := store.Prune()
		if err != nil {
			return err
		}
		logger.Info("Cache pruned", zap.String("dir", store.Dir()), zap.Int("removed", removed))
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries from %s\n", removed, store.Dir())
		return nil
	},
}

// cacheClearCmd removes every entry
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all review results from the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		return clearCache(cfg, cmd.OutOrStdout())
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd, cacheClearCmd)
}

// clearCache empties the review cache and reports the count to out.
func clearCache(cfg *config.Config, out io.Writer) error {
	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	removed, err := store.Clear()
	if err != nil {
		return err
	}
	logger.Info("Cache cleared", zap.String("dir", store.Dir()), zap.Int("removed", removed))
	fmt.Fprintf(out, "Removed %d entries from %s\n", removed, store.Dir())
	return nil
}
