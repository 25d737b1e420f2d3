// Package cache stores single-shot review results on disk keyed by a
// content fingerprint of the review inputs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// KeyInputs are the review inputs that determine a result.
type KeyInputs struct {
	Code                 string
	Language             string
	Model                string
	AdditionalContext    string
	Frameworks           []string
	SecurityRequirements string
}

// Key returns the hex SHA-256 fingerprint of the normalized inputs. Text
// fields have line endings normalized; identifiers are trimmed and
// lowercased; frameworks are treated as a set. Every field is length
// prefixed so adjacent fields cannot run together.
func Key(in KeyInputs) string {
	h := sha256.New()
	field := func(name, value string) {
		fmt.Fprintf(h, "%s:%d:%s\n", name, len(value), value)
	}

	field("code", normalizeText(in.Code))
	field("language", normalizeIdent(in.Language))
	field("model", normalizeIdent(in.Model))
	field("context", normalizeText(in.AdditionalContext))

	frameworks := make([]string, 0, len(in.Frameworks))
	seen := make(map[string]bool, len(in.Frameworks))
	for _, f := range in.Frameworks {
		f = normalizeIdent(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		frameworks = append(frameworks, f)
	}
	sort.Strings(frameworks)
	field("frameworks", fmt.Sprint(len(frameworks)))
	for _, f := range frameworks {
		field("framework", f)
	}

	field("requirements", normalizeText(in.SecurityRequirements))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func normalizeIdent(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// validFingerprint guards the file name derived from a fingerprint.
func validFingerprint(fp string) bool {
	if len(fp) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(fp)
	return err == nil
}
