// Package review implements single-shot code review: prompt the model once
// for a JSON document, recover what it can from truncated or malformed
// output, and cache valid results by input fingerprint.
package review

import (
	"encoding/json"
	"fmt"
	"strings"

	"ultron/internal/logging"
)

// Outcome says how a reply was turned into JSON.
type Outcome int

const (
	// OutcomeValid means the reply parsed as-is.
	OutcomeValid Outcome = iota
	// OutcomeRepaired means the reply parsed after Repair.
	OutcomeRepaired
	// OutcomeUnrecoverable means neither the reply nor its repair parsed.
	OutcomeUnrecoverable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeRepaired:
		return "repaired"
	default:
		return "unrecoverable"
	}
}

// RepairedNote is recorded on documents recovered from broken JSON.
const RepairedNote = "Model output was truncated or malformed and was repaired; trailing content may be missing."

// ParseValue decodes raw as JSON, falling back to Repair. On success it
// returns the decoded value and the text that produced it. Valid input is
// returned untouched.
func ParseValue(raw string) (any, string, Outcome, error) {
	var v any
	firstErr := json.Unmarshal([]byte(raw), &v)
	if firstErr == nil {
		return v, raw, OutcomeValid, nil
	}

	repaired := Repair(raw)
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, repaired, OutcomeUnrecoverable,
			fmt.Errorf("failed to parse model output: %v (after repair: %v)", firstErr, err)
	}
	logging.ReviewDebug("Repaired model JSON (%d -> %d bytes): %v", len(raw), len(repaired), firstErr)
	return v, repaired, OutcomeRepaired, nil
}

// Parse converts raw model text into a Document. It never fails: anything
// that cannot be recovered or does not fit the schema becomes a stub with
// Error set and RawText preserved.
func Parse(raw string) *Document {
	if strings.TrimSpace(raw) == "" {
		return Stub("empty response from model", raw)
	}

	v, text, outcome, err := ParseValue(raw)
	if err != nil {
		logging.Review("Unrecoverable model output: %v", err)
		return Stub(err.Error(), raw)
	}
	if _, ok := v.(map[string]any); !ok {
		return Stub(fmt.Sprintf("expected a JSON object, got %T", v), raw)
	}

	var doc Document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return Stub(fmt.Sprintf("model output does not match the review schema: %v", err), raw)
	}
	doc.normalize()
	if err := doc.Validate(); err != nil {
		return Stub(err.Error(), raw)
	}

	if outcome == OutcomeRepaired {
		doc.RawText = raw
		if doc.LLMProcessingNotes == "" {
			doc.LLMProcessingNotes = RepairedNote
		} else {
			doc.LLMProcessingNotes += " " + RepairedNote
		}
	}
	return &doc
}
