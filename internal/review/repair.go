package review

import (
	"encoding/json"
	"strings"
)

// scanState is the lexical state of the repair scanner.
type scanState int

const (
	stateNormal scanState = iota
	stateInString
	stateEscaped
)

// scanResult summarizes one pass over a JSON prefix.
type scanResult struct {
	state scanState
	// stack holds the unclosed openers, outermost first.
	stack []byte
	// end is the index just past the closer of the root value, or -1.
	end int
	// boundary is the index of the last comma at depth 1, or -1.
	boundary int
	// memberColon records a depth-1 colon since the last boundary.
	memberColon bool
	// stringStart is the index of the opening quote of the open string.
	stringStart int
}

// scan walks s, which must start with '{' or '['. Quotes, brackets and
// commas inside strings are ignored; escapes are honored.
func scan(s string) scanResult {
	r := scanResult{end: -1, boundary: -1, stringStart: -1}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch r.state {
		case stateEscaped:
			r.state = stateInString
			continue
		case stateInString:
			switch c {
			case '\\':
				r.state = stateEscaped
			case '"':
				r.state = stateNormal
				r.stringStart = -1
			}
			continue
		}

		switch c {
		case '"':
			r.state = stateInString
			r.stringStart = i
		case '{', '[':
			r.stack = append(r.stack, c)
		case '}', ']':
			if len(r.stack) > 0 {
				r.stack = r.stack[:len(r.stack)-1]
			}
			if len(r.stack) == 0 {
				r.end = i + 1
				return r
			}
		case ',':
			if len(r.stack) == 1 {
				r.boundary = i
				r.memberColon = false
			}
		case ':':
			if len(r.stack) == 1 {
				r.memberColon = true
			}
		}
	}
	return r
}

// tailComplete reports whether the text after the last depth-1 boundary is
// a finished member: nothing nested is open, no string is open, and the
// value ends in a quote or closer. Bare literals are treated as possibly
// cut short.
func (r scanResult) tailComplete(s string) bool {
	if r.state != stateNormal || len(r.stack) != 1 {
		return false
	}
	start := 1
	if r.boundary >= 0 {
		start = r.boundary + 1
	}
	tail := strings.TrimSpace(s[start:])
	if tail == "" {
		return false
	}
	switch tail[len(tail)-1] {
	case '"', '}', ']':
	default:
		return false
	}
	if r.stack[0] == '{' {
		return r.memberColon
	}
	return true
}

func closerFor(open byte) byte {
	if open == '[' {
		return ']'
	}
	return '}'
}

// Repair turns a possibly truncated or fenced JSON reply into the closest
// valid JSON text. It strips a ```json fence, skips any prose before the
// first opener and ignores anything after the root value closes. For a
// truncated value it prefers dropping the last incomplete top-level member
// over inventing content, otherwise it closes the open string and every
// open container. Trailing commas before closers are removed.
//
// Repair is deterministic and idempotent: Repair(Repair(s)) == Repair(s).
// Text without any opener is returned trimmed and unchanged.
func Repair(raw string) string {
	text := stripFence(strings.TrimSpace(raw))
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	text = text[start:]

	r := scan(text)
	if r.end >= 0 {
		return removeTrailingCommas(text[:r.end])
	}

	root := closerFor(text[0])
	if r.boundary > 0 && !r.tailComplete(text) {
		return removeTrailingCommas(text[:r.boundary] + string(root))
	}

	closed := removeTrailingCommas(closeOpen(text, r))
	if json.Valid([]byte(closed)) {
		return closed
	}
	if r.boundary > 0 {
		return removeTrailingCommas(text[:r.boundary] + string(root))
	}
	return string(text[0]) + string(root)
}

// closeOpen terminates an open string and appends closers for the stack.
// A member cut off after its colon gets a null value.
func closeOpen(text string, r scanResult) string {
	var sb strings.Builder
	switch r.state {
	case stateInString:
		sb.WriteString(dropPartialEscape(text, r.stringStart))
		sb.WriteByte('"')
	case stateEscaped:
		// The dangling backslash cannot be completed.
		sb.WriteString(text[:len(text)-1])
		sb.WriteByte('"')
	default:
		sb.WriteString(text)
		if strings.HasSuffix(strings.TrimRight(text, " \t\r\n"), ":") {
			sb.WriteString("null")
		}
	}
	for i := len(r.stack) - 1; i >= 0; i-- {
		sb.WriteByte(closerFor(r.stack[i]))
	}
	return sb.String()
}

// dropPartialEscape removes an incomplete \uXXXX escape from the end of the
// open string that begins at quote.
func dropPartialEscape(text string, quote int) string {
	if quote < 0 {
		return text
	}
	body := text[quote+1:]
	i := strings.LastIndex(body, `\u`)
	if i < 0 || len(body)-(i+2) >= 4 {
		return text
	}
	// An even run of backslashes before \u means the escape is literal text.
	slashes := 0
	for j := i; j >= 0 && body[j] == '\\'; j-- {
		slashes++
	}
	if slashes%2 == 0 {
		return text
	}
	return text[:quote+1+i]
}

// removeTrailingCommas deletes commas that are followed only by whitespace
// and a closer. String contents are left alone.
func removeTrailingCommas(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	state := stateNormal
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateEscaped:
			state = stateInString
		case stateInString:
			switch c {
			case '\\':
				state = stateEscaped
			case '"':
				state = stateNormal
			}
		default:
			if c == '"' {
				state = stateInString
			} else if c == ',' {
				switch nextSignificant(s, i+1) {
				case '}', ']', ',':
					continue
				}
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func nextSignificant(s string, from int) byte {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return s[i]
	}
	return 0
}

// stripFence removes a surrounding markdown code fence such as ```json.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := s[3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
