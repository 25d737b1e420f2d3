package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ultron/internal/config"
	"ultron/internal/logging"
	"ultron/internal/tools"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ultron",
	Short: "ultron - autonomous security investigator",
	Long: `ultron investigates a codebase with a tool-using model agent.

The agent reads, searches and executes code inside a sandboxed project root
and ends with a report of the most critical exploitable vulnerability.
The review command runs a single-shot structured review of one file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAudit()
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory for config and logs (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.ultron/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall command timeout")

	rootCmd.AddCommand(
		investigateCmd,
		reviewCmd,
		cacheCmd,
		treeCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// workspaceDir resolves the workspace flag, defaulting to the working directory.
func workspaceDir() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// loadConfig reads the config file and starts file logging. requireKey
// makes a missing API key a configuration error.
func loadConfig(requireKey bool) (*config.Config, error) {
	ws := workspaceDir()
	path := configPath
	if path == "" {
		path = filepath.Join(ws, config.DefaultConfigPath)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if requireKey {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateLimits()
	}
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Initialize(ws, cfg.Logging.Options()); err != nil {
		logger.Warn("File logging disabled", zap.Error(err))
	} else if err := logging.InitAudit(); err != nil {
		logger.Warn("Audit logging disabled", zap.Error(err))
	}
	logger.Debug("Configuration loaded",
		zap.String("path", path),
		zap.String("model", cfg.LLM.ModelName()),
		zap.Int("max_turns", cfg.Agent.MaxTurns))
	return cfg, nil
}

// limitsFromConfig builds the per-call tool limits.
func limitsFromConfig(cfg *config.Config) tools.Limits {
	return tools.Limits{
		MaxObservationBytes: cfg.Agent.MaxObservationBytes,
		MaxReadBytes:        cfg.Tools.MaxReadBytes,
		MaxSearchMatches:    cfg.Tools.MaxSearchMatches,
		TreeMaxEntries:      cfg.Tools.TreeMaxEntries,
		ExcludedDirs:        cfg.Tools.ExcludedDirs,
		TaintSources:        cfg.Tools.TaintSources,
		TaintSinks:          cfg.Tools.TaintSinks,
		ShellTimeout:        cfg.GetShellTimeout(),
		ShellMaxOutputBytes: cfg.Shell.MaxOutputBytes,
	}
}

// commandContext bounds a command by the timeout flag and cancels it on
// SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
