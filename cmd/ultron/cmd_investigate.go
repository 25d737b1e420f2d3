package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ultron/internal/agent"
	"ultron/internal/config"
	"ultron/internal/perception"
	"ultron/internal/prompt"
	"ultron/internal/sandbox"
	"ultron/internal/tools"
	"ultron/internal/tools/core"
	"ultron/internal/tools/shell"
)

var (
	missions       []string
	maxTurns       int
	renderMarkdown bool
)

// investigateCmd runs agent sessions against a project root
var investigateCmd = &cobra.Command{
	Use:   "investigate [root]",
	Short: "Investigate a codebase with the tool-using agent",
	Long: `Runs an agent session sandboxed to root (default: current directory).

Each --mission starts an independent session. Several missions run in
parallel worker slots (agent.parallelism) and share only the codebase.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInvestigate,
}

func init() {
	investigateCmd.Flags().StringArrayVarP(&missions, "mission", "m", nil, "Mission for the agent (repeatable; default: full security audit)")
	investigateCmd.Flags().IntVar(&maxTurns, "max-turns", 0, "Tool-call budget per session (default: agent.max_turns)")
	investigateCmd.Flags().BoolVar(&renderMarkdown, "render", false, "Render reports as terminal markdown")
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	backend, err := perception.NewGeminiBackend(ctx, cfg.LLM, cfg.GetLLMTimeout())
	if err != nil {
		return err
	}
	logger.Info("Using model", zap.String("model", backend.ModelName()))

	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	return investigate(ctx, backend, cfg, root, missions, cmd.OutOrStdout())
}

// investigate builds the registry and loop, runs every mission and writes
// the reports to out.
func investigate(ctx context.Context, backend agent.Backend, cfg *config.Config, root string, missionTexts []string, out io.Writer) error {
	resolver, tree, err := indexRoot(cfg, root)
	if err != nil {
		return err
	}

	if len(missionTexts) == 0 {
		missionTexts = []string{""}
	}
	batch := make([]agent.Mission, 0, len(missionTexts))
	for i, m := range missionTexts {
		text, err := prompt.Mission(m, tree)
		if err != nil {
			return err
		}
		batch = append(batch, agent.Mission{
			Name:   fmt.Sprintf("mission-%d", i+1),
			Root:   resolver.Root(),
			Prompt: text,
		})
	}
	return runMissions(ctx, backend, cfg, batch, out)
}

// indexRoot sandboxes root and renders its directory tree.
func indexRoot(cfg *config.Config, root string) (*sandbox.Resolver, string, error) {
	resolver, err := sandbox.NewResolver(root)
	if err != nil {
		return nil, "", err
	}
	tree, err := resolver.Tree(sandbox.TreeOptions{
		MaxEntries: cfg.Tools.TreeMaxEntries,
		Exclude:    cfg.Tools.ExcludedDirs,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to index %s: %w", root, err)
	}
	return resolver, tree, nil
}

// runMissions runs batch through one loop and writes the reports to out in
// mission order.
func runMissions(ctx context.Context, backend agent.Backend, cfg *config.Config, batch []agent.Mission, out io.Writer) error {
	registry := tools.NewRegistry()
	if err := core.RegisterAll(registry); err != nil {
		return err
	}
	if err := shell.RegisterAll(registry); err != nil {
		return err
	}

	turns := cfg.Agent.MaxTurns
	if maxTurns > 0 {
		turns = maxTurns
	}
	loop, err := agent.NewLoop(backend, registry,
		agent.WithMaxTurns(turns),
		agent.WithLimits(limitsFromConfig(cfg)),
	)
	if err != nil {
		return err
	}

	logger.Info("Starting investigation",
		zap.Int("missions", len(batch)),
		zap.Int("tools", registry.Count()),
		zap.Int("max_turns", turns))

	outcomes := loop.RunAll(ctx, batch, cfg.Agent.Parallelism)
	for _, o := range outcomes {
		if o.Err != nil {
			return fmt.Errorf("%s: %w", o.Mission.Name, o.Err)
		}
		if len(outcomes) > 1 {
			fmt.Fprintf(out, "## %s\n\n", o.Mission.Name)
		}
		if verbose {
			fmt.Fprintln(out, o.Session.Transcript())
		}
		if err := writeMarkdown(out, o.Session.Report); err != nil {
			return err
		}
		logger.Info("Session finished",
			zap.String("mission", o.Mission.Name),
			zap.String("root", o.Mission.Root),
			zap.String("session", o.Session.ID),
			zap.String("reason", string(o.Session.StopReason)),
			zap.Int("turns", o.Session.TurnCount))
	}
	return nil
}

// writeMarkdown prints text, rendered through glamour when --render is set.
func writeMarkdown(out io.Writer, text string) error {
	if !renderMarkdown {
		_, err := fmt.Fprintln(out, strings.TrimRight(text, "\n"))
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}
