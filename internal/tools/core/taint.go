package core

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"ultron/internal/logging"
	"ultron/internal/tools"
)

// NoTaintHint is appended when neither list matches.
const NoTaintHint = "Note: no keyword match does not mean the file is safe. Tainted data may arrive through wrappers, aliases or framework callbacks; trace the data flow manually."

// TaintTool returns a tool that scans one file for source and sink keywords.
func TaintTool() *tools.Tool {
	return &tools.Tool{
		Name:        "find_taint_sources_and_sinks",
		Description: "Scan a file for keywords that typically mark untrusted input (sources) and security-sensitive operations (sinks). Returns source hits and sink hits separately.",
		Category:    tools.CategoryScan,
		Priority:    75,
		Execute:     executeTaint,
		Schema: tools.ToolSchema{
			Required: []string{"file_path"},
			Properties: map[string]tools.Property{
				"file_path": {
					Type:        "string",
					Description: "File path relative to the project root",
					Path:        true,
				},
				"sources": {
					Type:        "array",
					Description: "Source keywords to use instead of the defaults",
					Items:       &tools.PropertyItems{Type: "string"},
				},
				"sinks": {
					Type:        "array",
					Description: "Sink keywords to use instead of the defaults",
					Items:       &tools.PropertyItems{Type: "string"},
				},
			},
		},
	}
}

// TaintHit is one line matching a keyword.
type TaintHit struct {
	LineNumber int
	Keyword    string
	Line       string
}

// TaintReport holds the hits of one scan, split by list.
type TaintReport struct {
	Sources []TaintHit
	Sinks   []TaintHit
}

// ScanTaint matches every line against both keyword lists. A line may hit
// both lists; within one list only the first matching keyword is reported.
func ScanTaint(ctx context.Context, path string, sources, sinks []string) (*TaintReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	report := &TaintReport{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum%1000 == 0 && ctx.Err() != nil {
			return report, ctx.Err()
		}
		line := decodeLenient(scanner.Bytes())
		if kw := firstKeyword(line, sources); kw != "" {
			report.Sources = append(report.Sources, TaintHit{LineNumber: lineNum, Keyword: kw, Line: clip(strings.TrimSpace(line))})
		}
		if kw := firstKeyword(line, sinks); kw != "" {
			report.Sinks = append(report.Sinks, TaintHit{LineNumber: lineNum, Keyword: kw, Line: clip(strings.TrimSpace(line))})
		}
	}
	return report, scanner.Err()
}

func firstKeyword(line string, keywords []string) string {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(line, kw) {
			return kw
		}
	}
	return ""
}

func executeTaint(ctx context.Context, inv *tools.Invocation) (string, error) {
	p := inv.Path("file_path")
	if obs, ok := checkRegularFile(inv.Env.Sandbox, p); !ok {
		return obs, nil
	}

	sources := stringList(inv.Args["sources"], inv.Env.Limits.TaintSources)
	sinks := stringList(inv.Args["sinks"], inv.Env.Limits.TaintSinks)
	if len(sources) == 0 && len(sinks) == 0 {
		return "", fmt.Errorf("no source or sink keywords configured")
	}

	logging.ToolsDebug("find_taint_sources_and_sinks: path=%s sources=%d sinks=%d", p.Input, len(sources), len(sinks))

	report, err := ScanTaint(ctx, p.Resolved, sources, sinks)
	if err != nil {
		return "", fmt.Errorf("could not scan '%s': %w", p.Input, err)
	}

	if len(report.Sources) == 0 && len(report.Sinks) == 0 {
		return fmt.Sprintf("No taint sources or sinks matched in '%s'.\n%s", p.Input, NoTaintHint), nil
	}

	limit := inv.Env.Limits.MaxSearchMatches
	var sb strings.Builder
	fmt.Fprintf(&sb, "Taint scan of '%s':\n", p.Input)
	writeHits(&sb, "SOURCES", report.Sources, limit)
	writeHits(&sb, "SINKS", report.Sinks, limit)

	logging.Tools("find_taint_sources_and_sinks completed: %s (%d sources, %d sinks)", p.Input, len(report.Sources), len(report.Sinks))
	return strings.TrimRight(sb.String(), "\n"), nil
}

func writeHits(sb *strings.Builder, title string, hits []TaintHit, limit int) {
	fmt.Fprintf(sb, "--- %s (%d) ---\n", title, len(hits))
	if len(hits) == 0 {
		sb.WriteString("(none)\n")
		return
	}
	for i, h := range hits {
		if limit > 0 && i == limit {
			fmt.Fprintf(sb, "... %d more\n", len(hits)-limit)
			break
		}
		fmt.Fprintf(sb, "Line %d [%s]: %s\n", h.LineNumber, h.Keyword, h.Line)
	}
}

// stringList converts a validated array argument, falling back to def
// when absent or empty.
func stringList(v any, def []string) []string {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return def
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
