package prompt

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"ultron/internal/logging"
)

// Assemble renders every applicable atom of category in descending
// priority order, separated by blank lines.
func Assemble(atoms []*PromptAtom, category AtomCategory, data map[string]string) (string, error) {
	var selected []*PromptAtom
	for _, a := range atoms {
		if a.Category == category && a.Applies(data) {
			selected = append(selected, a)
		}
	}
	if len(selected) == 0 {
		return "", fmt.Errorf("no prompt atoms for category %q", category)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Priority != selected[j].Priority {
			return selected[i].Priority > selected[j].Priority
		}
		return selected[i].ID < selected[j].ID
	})

	sections := make([]string, 0, len(selected))
	for _, a := range selected {
		text, err := a.Render(data)
		if err != nil {
			return "", err
		}
		sections = append(sections, text)
	}
	return strings.Join(sections, "\n\n"), nil
}

// DefaultMission is used when the caller names no mission.
const DefaultMission = "Perform a comprehensive security audit of the codebase. " +
	"Find the single most critical, practically exploitable vulnerability, prove it, and report it."

// Mission builds the first user turn of an investigation from the mission
// and the directory tree of the sandbox root.
func Mission(mission, tree string) (string, error) {
	if strings.TrimSpace(mission) == "" {
		mission = DefaultMission
	}
	atoms, err := Corpus()
	if err != nil {
		return "", err
	}
	return Assemble(atoms, CategoryMission, map[string]string{
		"mission": strings.TrimSpace(mission),
		"tree":    tree,
	})
}

// Finding identifies one review finding to validate.
type Finding struct {
	File        string
	Line        string
	Type        string
	Description string
	Impact      string
}

// DeepDive builds the first user turn of a session that validates f.
// The finding becomes the mission; the rest of the prompt is the regular
// investigation prompt over tree.
func DeepDive(f Finding, tree string) (string, error) {
	atoms, err := Corpus()
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(f.Line)
	if line == "" {
		line = "unknown"
	}
	kind := strings.TrimSpace(f.Type)
	if kind == "" {
		kind = "Security"
	}
	mission, err := Assemble(atoms, CategoryDeepDive, map[string]string{
		"file":        filepath.ToSlash(f.File),
		"line":        line,
		"type":        kind,
		"description": strings.TrimSpace(f.Description),
		"impact":      strings.TrimSpace(f.Impact),
	})
	if err != nil {
		return "", err
	}
	return Mission(mission, tree)
}

// ReviewInput holds the user-supplied parts of a review prompt.
type ReviewInput struct {
	Code                 string
	Language             string
	AdditionalContext    string
	Frameworks           []string
	SecurityRequirements string
}

// Review builds the single-shot review prompt. The embedded atoms are
// validated at load, so only a broken build can make this fail; in that
// case the bare code is returned so the caller still gets a review.
func Review(in ReviewInput) string {
	language := strings.TrimSpace(in.Language)
	if language == "" || language == "auto" {
		language = "source"
	}
	data := map[string]string{
		"code":         in.Code,
		"language":     language,
		"context":      in.AdditionalContext,
		"frameworks":   strings.Join(in.Frameworks, ", "),
		"requirements": in.SecurityRequirements,
	}

	atoms, err := Corpus()
	if err == nil {
		var text string
		if text, err = Assemble(atoms, CategoryReview, data); err == nil {
			return text
		}
	}
	logging.Get(logging.CategoryReview).Error("Review prompt assembly failed: %v", err)
	return fmt.Sprintf("Review this %s code and answer with a JSON object:\n\n%s", language, in.Code)
}
