package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// AtomCategory groups atoms into one prompt.
type AtomCategory string

const (
	CategoryMission  AtomCategory = "mission"
	CategoryReview   AtomCategory = "review"
	CategoryDeepDive AtomCategory = "deepdive"
)

// PromptAtom is one section of a prompt. Content is a text/template over
// the assembly data.
type PromptAtom struct {
	// Unique identifier for this atom (e.g., "mission-tree")
	ID       string       `yaml:"id"`
	Category AtomCategory `yaml:"category"`

	// Higher priority atoms are rendered first.
	Priority int `yaml:"priority"`

	// When lists data keys that must be non-empty for the atom to render.
	When []string `yaml:"when,omitempty"`

	Content string `yaml:"content"`

	tmpl *template.Template
}

// Validate checks required fields and compiles the content template.
func (a *PromptAtom) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("atom ID is required")
	}
	if a.Category == "" {
		return fmt.Errorf("atom %s: category is required", a.ID)
	}
	if strings.TrimSpace(a.Content) == "" {
		return fmt.Errorf("atom %s: content is required", a.ID)
	}
	tmpl, err := template.New(a.ID).Option("missingkey=error").Parse(a.Content)
	if err != nil {
		return fmt.Errorf("atom %s: %w", a.ID, err)
	}
	a.tmpl = tmpl
	return nil
}

// Applies reports whether every When key is set in data.
func (a *PromptAtom) Applies(data map[string]string) bool {
	for _, key := range a.When {
		if strings.TrimSpace(data[key]) == "" {
			return false
		}
	}
	return true
}

// Render executes the content template.
func (a *PromptAtom) Render(data map[string]string) (string, error) {
	if a.tmpl == nil {
		if err := a.Validate(); err != nil {
			return "", err
		}
	}
	var sb strings.Builder
	if err := a.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("atom %s: %w", a.ID, err)
	}
	return strings.TrimSpace(sb.String()), nil
}
