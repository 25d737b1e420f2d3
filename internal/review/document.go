package review

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Issue types used when the model leaves type empty.
const (
	DefaultVulnerabilityType = "Security"
	DefaultSuggestionType    = "Suggestion"
)

// Document is the structured result of a single-shot review. Error is set
// on every document that does not carry a real model result; such
// documents are never cached.
type Document struct {
	Summary                       string          `json:"summary" validate:"required"`
	HighConfidenceVulnerabilities []Vulnerability `json:"highConfidenceVulnerabilities" validate:"dive"`
	LowPrioritySuggestions        []Suggestion    `json:"lowPrioritySuggestions" validate:"dive"`
	InputCodeTokens               *int            `json:"inputCodeTokens,omitempty" validate:"omitempty,gte=0"`
	AdditionalContextTokens       *int            `json:"additionalContextTokens,omitempty" validate:"omitempty,gte=0"`
	LLMProcessingNotes            string          `json:"llmProcessingNotes,omitempty"`
	Error                         string          `json:"error,omitempty"`
	RawText                       string          `json:"rawText,omitempty"`
}

// Vulnerability is a finding the model is confident about.
type Vulnerability struct {
	Type                        string   `json:"type"`
	ConfidenceScore             string   `json:"confidenceScore,omitempty"`
	SeverityAssessment          string   `json:"severityAssessment,omitempty"`
	Line                        LineRef  `json:"line" validate:"required"`
	Description                 string   `json:"description" validate:"required"`
	Impact                      string   `json:"impact" validate:"required"`
	ProofOfConceptCodeOrCommand string   `json:"proofOfConceptCodeOrCommand,omitempty"`
	ProofOfConceptExplanation   string   `json:"proofOfConceptExplanation,omitempty"`
	PocActionabilityTags        []string `json:"pocActionabilityTags,omitempty"`
	Suggestion                  string   `json:"suggestion,omitempty"`
}

// Suggestion is a low priority remark.
type Suggestion struct {
	Type        string  `json:"type"`
	Line        LineRef `json:"line" validate:"required"`
	Description string  `json:"description" validate:"required"`
	Suggestion  string  `json:"suggestion,omitempty"`
}

// LineRef is a line reference the model may send as a number ("42") or as
// free text ("12-15", "N/A").
type LineRef string

// UnmarshalJSON accepts a string, a number or null.
func (l *LineRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*l = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = LineRef(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("line must be a string or number: %w", err)
		}
		*l = LineRef(n.String())
	}
	return nil
}

// MarshalJSON writes plain line numbers as JSON numbers.
func (l LineRef) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(l)); err == nil && n >= 0 && strconv.Itoa(n) == string(l) {
		return []byte(string(l)), nil
	}
	return json.Marshal(string(l))
}

// Int returns the line number when the reference is a single line.
func (l LineRef) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(l)))
	return n, err == nil
}

// ErrorMessage returns the document's error field.
func (d *Document) ErrorMessage() string { return d.Error }

// Validate checks the document against its schema.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("review document: %w", err)
	}
	return nil
}

// normalize fills defaulted fields and never-nil slices.
func (d *Document) normalize() {
	if d.HighConfidenceVulnerabilities == nil {
		d.HighConfidenceVulnerabilities = []Vulnerability{}
	}
	if d.LowPrioritySuggestions == nil {
		d.LowPrioritySuggestions = []Suggestion{}
	}
	for i := range d.HighConfidenceVulnerabilities {
		if d.HighConfidenceVulnerabilities[i].Type == "" {
			d.HighConfidenceVulnerabilities[i].Type = DefaultVulnerabilityType
		}
	}
	for i := range d.LowPrioritySuggestions {
		if d.LowPrioritySuggestions[i].Type == "" {
			d.LowPrioritySuggestions[i].Type = DefaultSuggestionType
		}
	}
}

// clone returns a copy that shares no slices or pointers with d.
func (d *Document) clone() *Document {
	c := *d
	c.HighConfidenceVulnerabilities = make([]Vulnerability, len(d.HighConfidenceVulnerabilities))
	for i, v := range d.HighConfidenceVulnerabilities {
		v.PocActionabilityTags = append([]string(nil), v.PocActionabilityTags...)
		c.HighConfidenceVulnerabilities[i] = v
	}
	c.LowPrioritySuggestions = append(make([]Suggestion, 0, len(d.LowPrioritySuggestions)), d.LowPrioritySuggestions...)
	c.InputCodeTokens = cloneInt(d.InputCodeTokens)
	c.AdditionalContextTokens = cloneInt(d.AdditionalContextTokens)
	return &c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	n := *p
	return &n
}

// Stub returns a placeholder document carrying err and the raw model text.
func Stub(err string, raw string) *Document {
	d := &Document{
		Summary: "Review failed: " + err,
		Error:   err,
		RawText: raw,
	}
	d.normalize()
	return d
}

// Empty returns the placeholder for code with nothing to review.
func Empty() *Document {
	d := &Document{
		Summary: "Empty content skipped.",
		Error:   "Empty content.",
	}
	d.normalize()
	return d
}

// Markdown renders the document as a markdown report.
func (d *Document) Markdown() string {
	var sb strings.Builder
	sb.WriteString("# Review\n\n")
	sb.WriteString(d.Summary + "\n")
	if d.Error != "" {
		fmt.Fprintf(&sb, "\n> **Error:** %s\n", d.Error)
	}

	if len(d.HighConfidenceVulnerabilities) > 0 {
		sb.WriteString("\n## High Confidence Vulnerabilities\n")
		for i, v := range d.HighConfidenceVulnerabilities {
			fmt.Fprintf(&sb, "\n### %d. %s (line %s)\n\n", i+1, v.Type, v.Line)
			if v.SeverityAssessment != "" || v.ConfidenceScore != "" {
				fmt.Fprintf(&sb, "Severity: **%s**, confidence: **%s**\n\n", orNA(v.SeverityAssessment), orNA(v.ConfidenceScore))
			}
			sb.WriteString(v.Description + "\n\n")
			fmt.Fprintf(&sb, "**Impact:** %s\n", v.Impact)
			if v.ProofOfConceptCodeOrCommand != "" {
				fmt.Fprintf(&sb, "\n```\n%s\n```\n", v.ProofOfConceptCodeOrCommand)
			}
			if v.ProofOfConceptExplanation != "" {
				sb.WriteString("\n" + v.ProofOfConceptExplanation + "\n")
			}
			if len(v.PocActionabilityTags) > 0 {
				fmt.Fprintf(&sb, "\nTags: %s\n", strings.Join(v.PocActionabilityTags, ", "))
			}
			if v.Suggestion != "" {
				fmt.Fprintf(&sb, "\n**Fix:** %s\n", v.Suggestion)
			}
		}
	}

	if len(d.LowPrioritySuggestions) > 0 {
		sb.WriteString("\n## Low Priority Suggestions\n\n")
		for _, s := range d.LowPrioritySuggestions {
			fmt.Fprintf(&sb, "- **%s** (line %s): %s", s.Type, s.Line, s.Description)
			if s.Suggestion != "" {
				sb.WriteString(" " + s.Suggestion)
			}
			sb.WriteString("\n")
		}
	}

	if d.InputCodeTokens != nil {
		fmt.Fprintf(&sb, "\n_Input tokens: %d_\n", *d.InputCodeTokens)
	}
	if d.LLMProcessingNotes != "" {
		fmt.Fprintf(&sb, "\n_%s_\n", d.LLMProcessingNotes)
	}
	return sb.String()
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
