package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ultron/internal/agent"
	"ultron/internal/cache"
	"ultron/internal/config"
	"ultron/internal/perception"
	"ultron/internal/prompt"
	"ultron/internal/review"
)

var (
	reviewLanguage     string
	reviewCode         string
	reviewContext      string
	reviewFrameworks   []string
	reviewRequirements string
	reviewRecursive    bool
	reviewExclude      []string
	reviewNoCache      bool
	reviewClearCache   bool
	reviewJSON         bool
	reviewDeepDive     bool
)

// reviewCmd runs single-shot structured reviews of a file, a folder or a snippet
var reviewCmd = &cobra.Command{
	Use:   "review [path]",
	Short: "Run a single-shot structured security review",
	Long: `Sends each file to the model once and parses the reply into a review
document. Truncated or malformed replies are repaired when possible.
Valid results are cached by content fingerprint.

path may be a file or a folder. Folders are scanned for files with a
known extension (add --recursive to descend). Use --code to review a
snippet instead. --deep-dive hands every high-confidence finding to the
tool-using agent for validation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewLanguage, "language", "l", review.AutoLanguage,
		"Source language ("+strings.Join(review.Languages(), ", ")+"), or auto to detect per file")
	reviewCmd.Flags().StringVar(&reviewCode, "code", "", "Code snippet to review instead of a path")
	reviewCmd.Flags().StringVar(&reviewContext, "context", "", "Additional context for the reviewer")
	reviewCmd.Flags().StringSliceVar(&reviewFrameworks, "frameworks", nil, "Frameworks in use (comma separated)")
	reviewCmd.Flags().StringVar(&reviewRequirements, "sec-reqs", "", "Security requirements, as a file path or literal text")
	reviewCmd.Flags().BoolVarP(&reviewRecursive, "recursive", "r", false, "Descend into subfolders")
	reviewCmd.Flags().StringArrayVarP(&reviewExclude, "exclude", "e", nil, "Glob of files or folders to skip (repeatable)")
	reviewCmd.Flags().BoolVar(&reviewNoCache, "no-cache", false, "Bypass the result cache")
	reviewCmd.Flags().BoolVar(&reviewClearCache, "clear-cache", false, "Empty the result cache before reviewing")
	reviewCmd.Flags().BoolVar(&reviewJSON, "json", false, "Print review documents as JSON")
	reviewCmd.Flags().BoolVar(&reviewDeepDive, "deep-dive", false, "Validate each high-confidence finding with the agent")
	reviewCmd.Flags().BoolVar(&renderMarkdown, "render", false, "Render reviews as terminal markdown")
}

// fileReview pairs a reviewed path with its document.
type fileReview struct {
	Path string
	Doc  *review.Document
}

func runReview(cmd *cobra.Command, args []string) error {
	switch {
	case len(args) == 0 && reviewCode == "":
		return errors.New("either a path or --code is required")
	case len(args) > 0 && reviewCode != "":
		return errors.New("a path and --code cannot be combined")
	case reviewDeepDive && reviewCode != "":
		return errors.New("--deep-dive needs a path to investigate")
	}

	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if reviewClearCache {
		if err := clearCache(cfg, cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	backend, err := perception.NewGeminiBackend(ctx, cfg.LLM, cfg.GetLLMTimeout())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if reviewCode != "" {
		return reviewSnippet(ctx, backend, cfg, reviewCode, out)
	}
	reviews, err := reviewPath(ctx, backend, cfg, args[0], out)
	if err != nil {
		return err
	}
	if reviewDeepDive {
		return deepDive(ctx, backend, cfg, args[0], reviews, out)
	}
	return nil
}

// openStore returns the review cache, or nil when caching is off.
func openStore(cfg *config.Config) (*cache.Store[*review.Document], error) {
	if !cfg.Cache.Enabled || reviewNoCache {
		return nil, nil
	}
	return newStore(cfg)
}

func newStore(cfg *config.Config) (*cache.Store[*review.Document], error) {
	return cache.New(cfg.GetCacheDir(), cfg.GetCacheTTL(), func() *review.Document { return &review.Document{} })
}

func newReviewer(model review.Model, cfg *config.Config) (*review.Reviewer, error) {
	store, err := openStore(cfg)
	if err != nil {
		logger.Warn("Result cache disabled", zap.Error(err))
		store = nil
	}
	return review.NewReviewer(model, store)
}

// securityRequirements reads --sec-reqs from a file when it names one and
// uses the flag value as literal text otherwise.
func securityRequirements() string {
	if reviewRequirements == "" {
		return ""
	}
	if info, err := os.Stat(reviewRequirements); err == nil && info.Mode().IsRegular() {
		data, err := os.ReadFile(reviewRequirements)
		if err == nil {
			logger.Debug("Security requirements loaded from file", zap.String("path", reviewRequirements))
			return string(data)
		}
		logger.Warn("Failed to read security requirements file, using it as text",
			zap.String("path", reviewRequirements), zap.Error(err))
	}
	return reviewRequirements
}

func reviewRequest(code, language, requirements string) review.Request {
	return review.Request{
		Code:                 code,
		Language:             language,
		AdditionalContext:    reviewContext,
		Frameworks:           reviewFrameworks,
		SecurityRequirements: requirements,
	}
}

// reviewSnippet reviews the --code text. The language cannot be detected
// without a file name, so auto is rejected.
func reviewSnippet(ctx context.Context, model review.Model, cfg *config.Config, code string, out io.Writer) error {
	if reviewLanguage == review.AutoLanguage {
		return errors.New("--language is required with --code")
	}
	reviewer, err := newReviewer(model, cfg)
	if err != nil {
		return err
	}
	doc := reviewer.Review(ctx, reviewRequest(code, reviewLanguage, securityRequirements()))
	logReview("<code>", doc)
	return writeReviews(out, []fileReview{{Path: "<code>", Doc: doc}})
}

// reviewPath reviews target, a file or a folder, one Review per file in
// agent.parallelism slots. Documents are written to out in walk order.
func reviewPath(ctx context.Context, model review.Model, cfg *config.Config, target string, out io.Writer) ([]fileReview, error) {
	files, err := review.CollectFiles(target, review.CollectOptions{
		Recursive:    reviewRecursive,
		ExcludedDirs: cfg.Tools.ExcludedDirs,
		Exclude:      reviewExclude,
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no reviewable files found in %s", target)
	}

	language := reviewLanguage
	if language == review.AutoLanguage && len(files) == 1 {
		if _, ok := review.DetectLanguage(files[0]); !ok {
			return nil, fmt.Errorf("cannot detect the language of %s; pass --language", files[0])
		}
	}

	reviewer, err := newReviewer(model, cfg)
	if err != nil {
		return nil, err
	}
	requirements := securityRequirements()

	logger.Info("Starting review",
		zap.String("target", target),
		zap.Int("files", len(files)),
		zap.Bool("recursive", reviewRecursive))

	results := make([]fileReview, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Agent.Parallelism, 1))
	for i, path := range files {
		g.Go(func() error {
			results[i] = fileReview{Path: path, Doc: reviewOne(gctx, reviewer, path, language, requirements)}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		logReview(r.Path, r.Doc)
	}
	return results, writeReviews(out, results)
}

func reviewOne(ctx context.Context, reviewer *review.Reviewer, path, language, requirements string) *review.Document {
	code, err := os.ReadFile(path)
	if err != nil {
		return review.Stub(fmt.Sprintf("failed to read %s: %v", path, err), "")
	}
	if language == review.AutoLanguage {
		language, _ = review.DetectLanguage(path)
	}
	return reviewer.Review(ctx, reviewRequest(string(code), language, requirements))
}

func logReview(path string, doc *review.Document) {
	if doc.Error != "" {
		logger.Warn("Review did not produce a valid document",
			zap.String("file", path),
			zap.String("error", doc.Error))
		return
	}
	logger.Info("Review complete",
		zap.String("file", path),
		zap.Int("vulnerabilities", len(doc.HighConfidenceVulnerabilities)),
		zap.Int("suggestions", len(doc.LowPrioritySuggestions)))
}

// writeReviews prints one document as is, several keyed by path.
func writeReviews(out io.Writer, reviews []fileReview) error {
	if reviewJSON {
		var v any
		if len(reviews) == 1 {
			v = reviews[0].Doc
		} else {
			byPath := make(map[string]*review.Document, len(reviews))
			for _, r := range reviews {
				byPath[r.Path] = r.Doc
			}
			v = byPath
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode review: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	for _, r := range reviews {
		if len(reviews) > 1 {
			fmt.Fprintf(out, "## %s\n\n", r.Path)
		}
		if err := writeMarkdown(out, r.Doc.Markdown()); err != nil {
			return err
		}
	}
	return nil
}

// deepDive starts one agent mission per high-confidence finding, sandboxed
// to target (or the folder holding it when target is a file).
func deepDive(ctx context.Context, backend agent.Backend, cfg *config.Config, target string, reviews []fileReview, out io.Writer) error {
	root := target
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		root = filepath.Dir(target)
	}
	resolver, tree, err := indexRoot(cfg, root)
	if err != nil {
		return err
	}

	var batch []agent.Mission
	for _, r := range reviews {
		if r.Doc.Error != "" {
			continue
		}
		rel, err := filepath.Rel(root, r.Path)
		if err != nil {
			rel = r.Path
		}
		for _, v := range r.Doc.HighConfidenceVulnerabilities {
			text, err := prompt.DeepDive(prompt.Finding{
				File:        rel,
				Line:        string(v.Line),
				Type:        v.Type,
				Description: v.Description,
				Impact:      v.Impact,
			}, tree)
			if err != nil {
				return err
			}
			batch = append(batch, agent.Mission{
				Name:   fmt.Sprintf("%s:%s", filepath.ToSlash(rel), v.Line),
				Root:   resolver.Root(),
				Prompt: text,
			})
		}
	}
	if len(batch) == 0 {
		logger.Info("No high-confidence findings to investigate")
		return nil
	}

	fmt.Fprintf(out, "\n# Deep dive\n\n")
	return runMissions(ctx, backend, cfg, batch, out)
}
