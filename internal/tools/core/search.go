package core

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"ultron/internal/logging"
	"ultron/internal/sandbox"
	"ultron/internal/tools"
)

// maxLineDisplay keeps a single minified line from flooding an observation.
const maxLineDisplay = 300

// SearchPatternTool returns a tool for regex search within one file.
func SearchPatternTool() *tools.Tool {
	return &tools.Tool{
		Name:        "search_pattern_in_file",
		Description: "Search a single file for a regular expression and return the matching line numbers and lines.",
		Category:    tools.CategoryScan,
		Priority:    85,
		Execute:     executeSearchPattern,
		Schema: tools.ToolSchema{
			Required: []string{"file_path", "pattern"},
			Properties: map[string]tools.Property{
				"file_path": {
					Type:        "string",
					Description: "File path relative to the project root",
					Path:        true,
				},
				"pattern": {
					Type:        "string",
					Description: "Regular expression (RE2 syntax)",
				},
				"ignore_case": {
					Type:        "boolean",
					Description: "Case insensitive search (default: false)",
					Default:     false,
				},
			},
		},
	}
}

// GrepMatch represents a single match.
type GrepMatch struct {
	File       string
	LineNumber int
	Line       string
}

func executeSearchPattern(ctx context.Context, inv *tools.Invocation) (string, error) {
	p := inv.Path("file_path")
	re, err := compilePattern(inv.String("pattern"), inv.Bool("ignore_case", false))
	if err != nil {
		return "", err
	}

	logging.ToolsDebug("search_pattern_in_file: pattern=%s, path=%s", re.String(), p.Input)

	if obs, ok := checkRegularFile(inv.Env.Sandbox, p); !ok {
		return obs, nil
	}

	limit := inv.Env.Limits.MaxSearchMatches
	matches, err := searchFile(ctx, p.Resolved, re, limit)
	if err != nil {
		return "", fmt.Errorf("could not search '%s': %w", p.Input, err)
	}

	if len(matches) == 0 {
		return fmt.Sprintf("No matches found for pattern '%s' in '%s'.", inv.String("pattern"), p.Input), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d match(es) for pattern '%s' in '%s':\n", len(matches), inv.String("pattern"), p.Input)
	for _, m := range matches {
		fmt.Fprintf(&sb, "Line %d: %s\n", m.LineNumber, m.Line)
	}
	if limit > 0 && len(matches) >= limit {
		fmt.Fprintf(&sb, "... (stopped after %d matches; refine the pattern)\n", limit)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// SearchCodebaseTool returns a tool for recursive regex search.
func SearchCodebaseTool() *tools.Tool {
	return &tools.Tool{
		Name:        "search_codebase",
		Description: "Recursively search the project for a regular expression. Results are capped; refine the pattern if the cap is hit.",
		Category:    tools.CategoryScan,
		Priority:    80,
		Execute:     executeSearchCodebase,
		Schema: tools.ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern": {
					Type:        "string",
					Description: "Regular expression (RE2 syntax)",
				},
				"path": {
					Type:        "string",
					Description: "Directory to search, relative to the project root (default: project root)",
					Path:        true,
				},
				"file_pattern": {
					Type:        "string",
					Description: "Glob for file names to include (e.g., '*.c')",
				},
				"ignore_case": {
					Type:        "boolean",
					Description: "Case insensitive search (default: false)",
					Default:     false,
				},
			},
		},
	}
}

func executeSearchCodebase(ctx context.Context, inv *tools.Invocation) (string, error) {
	re, err := compilePattern(inv.String("pattern"), inv.Bool("ignore_case", false))
	if err != nil {
		return "", err
	}
	filePattern := inv.String("file_pattern")
	if filePattern != "" {
		if _, err := filepath.Match(filePattern, ""); err != nil {
			return "", fmt.Errorf("invalid file_pattern: %w", err)
		}
	}

	sb := inv.Env.Sandbox
	base := sb.Root()
	if p, ok := inv.Paths["path"]; ok {
		base = p.Resolved
		if info, err := os.Stat(base); err != nil {
			return sb.DescribeMissing(p), nil
		} else if !info.IsDir() {
			return "", fmt.Errorf("'%s' is not a directory; use search_pattern_in_file for single files", p.Input)
		}
	}

	limit := inv.Env.Limits.MaxSearchMatches
	skip := excludedSet(inv.Env.Limits.ExcludedDirs)
	maxRead := inv.Env.Limits.MaxReadBytes

	logging.ToolsDebug("search_codebase: pattern=%s, base=%s", re.String(), sb.Rel(base))

	var matches []GrepMatch
	capped := false
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			name := d.Name()
			if path != base && (strings.HasPrefix(name, ".") || skip[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if filePattern != "" {
			if ok, _ := filepath.Match(filePattern, d.Name()); !ok {
				return nil
			}
		}
		if info, err := d.Info(); err != nil || (maxRead > 0 && info.Size() > int64(maxRead)*10) {
			return nil
		}

		fileMatches, err := searchFile(ctx, path, re, limit-len(matches))
		if err != nil {
			return nil // Skip files with errors
		}
		for i := range fileMatches {
			fileMatches[i].File = sb.Rel(path)
		}
		matches = append(matches, fileMatches...)
		if limit > 0 && len(matches) >= limit {
			capped = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search interrupted: %w", err)
	}

	logging.Tools("search_codebase completed: %s (%d matches)", re.String(), len(matches))

	if len(matches) == 0 {
		return fmt.Sprintf("No matches found for pattern '%s'.", inv.String("pattern")), nil
	}

	var out strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&out, "%s:%d: %s\n", m.File, m.LineNumber, m.Line)
	}
	if capped {
		fmt.Fprintf(&out, "... (stopped after %d matches; refine the pattern or narrow the path)\n", limit)
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// searchFile returns up to maxMatches matching lines. Binary files yield
// no matches. A non-positive maxMatches is unbounded.
func searchFile(ctx context.Context, path string, re *regexp.Regexp, maxMatches int) ([]GrepMatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var matches []GrepMatch
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		raw := scanner.Bytes()
		if lineNum == 1 && looksBinary(raw) {
			return nil, nil
		}
		line := decodeLenient(raw)
		if !re.MatchString(line) {
			continue
		}
		matches = append(matches, GrepMatch{
			File:       path,
			LineNumber: lineNum,
			Line:       clip(strings.TrimSpace(line)),
		})
		if maxMatches > 0 && len(matches) >= maxMatches {
			break
		}
		if lineNum%1000 == 0 && ctx.Err() != nil {
			return matches, ctx.Err()
		}
	}

	return matches, scanner.Err()
}

func compilePattern(pattern string, ignoreCase bool) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern must not be empty")
	}
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	return re, nil
}

// checkRegularFile returns a recovery observation when p is missing or a
// directory.
func checkRegularFile(sb *sandbox.Resolver, p sandbox.Path) (string, bool) {
	info, err := os.Stat(p.Resolved)
	if err != nil {
		return sb.DescribeMissing(p), false
	}
	if info.IsDir() {
		return sb.DescribeDirectory(p), false
	}
	return "", true
}

func excludedSet(dirs []string) map[string]bool {
	if dirs == nil {
		dirs = sandbox.DefaultExcludedDirs
	}
	m := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		m[d] = true
	}
	return m
}

func clip(s string) string {
	if len(s) <= maxLineDisplay {
		return s
	}
	cut := maxLineDisplay
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut] + " ..."
}
