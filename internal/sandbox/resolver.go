// Package sandbox confines tool file access to a single project root.
//
// Every path a tool receives from the model passes through Resolve first.
// Lexical checks (absolute input, parent segments) run before any
// filesystem access; the surviving path is then canonicalized with
// symlinks evaluated and re-checked against the canonical root.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"ultron/internal/logging"
)

// Violation classifies why a path was refused.
type Violation int

const (
	// NoViolation means the path resolved inside the root.
	NoViolation Violation = iota
	// Traversal means the input contained a parent-directory segment.
	Traversal
	// AbsoluteInput means the input was an absolute host path.
	AbsoluteInput
	// OutsideRoot means the canonical path escaped the root (usually via symlink).
	OutsideRoot
)

func (v Violation) String() string {
	switch v {
	case NoViolation:
		return "none"
	case Traversal:
		return "traversal"
	case AbsoluteInput:
		return "absolute_input"
	case OutsideRoot:
		return "outside_root"
	default:
		return fmt.Sprintf("violation(%d)", int(v))
	}
}

// Path violation errors. Path.Err wraps ErrPathViolation together with
// the specific cause.
var (
	ErrPathViolation = errors.New("path violation")
	ErrTraversal     = errors.New("path traversal")
	ErrAbsoluteInput = errors.New("absolute path")
	ErrOutsideRoot   = errors.New("outside sandbox root")
)

// Path is the result of resolving a model-supplied relative path.
type Path struct {
	// Input is the path exactly as the model supplied it.
	Input string
	// Resolved is the canonical absolute path. Empty when Violation is set.
	Resolved string
	// Violation is NoViolation for usable paths.
	Violation Violation
}

// OK reports whether the path may be used for I/O.
func (p Path) OK() bool {
	return p.Violation == NoViolation && p.Resolved != ""
}

// Err returns nil for usable paths and a wrapped ErrPathViolation otherwise.
func (p Path) Err() error {
	if p.OK() {
		return nil
	}
	switch p.Violation {
	case Traversal:
		return fmt.Errorf("%w (%w): '%s' contains a parent-directory segment. Access denied", ErrPathViolation, ErrTraversal, p.Input)
	case AbsoluteInput:
		return fmt.Errorf("%w (%w): '%s' is absolute; use a path relative to the project root", ErrPathViolation, ErrAbsoluteInput, p.Input)
	default:
		return fmt.Errorf("%w (%w): '%s' resolves outside the project root. Access denied", ErrPathViolation, ErrOutsideRoot, p.Input)
	}
}

// evalSymlinks canonicalizes roots and targets.
var evalSymlinks = filepath.EvalSymlinks

// Resolver resolves paths against a fixed, canonicalized root.
type Resolver struct {
	root string
}

// NewResolver canonicalizes root and returns a resolver bound to it.
// The root must exist and be a directory.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}
	canon, err := evalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("failed to stat sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root is not a directory: %s", canon)
	}
	return &Resolver{root: canon}, nil
}

// Root returns the canonical root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve validates input and maps it to a canonical path under the root.
// Lexical violations are reported without touching the filesystem, not even
// to canonicalize root.
func Resolve(input, root string) Path {
	if v := lexicalViolation(input); v != NoViolation {
		return Path{Input: input, Violation: v}
	}
	r, err := NewResolver(root)
	if err != nil {
		return Path{Input: input, Violation: OutsideRoot}
	}
	return r.Resolve(input)
}

// Resolve validates input and maps it to a canonical path under r's root.
// An empty input or "." resolves to the root itself.
func (r *Resolver) Resolve(input string) Path {
	if v := lexicalViolation(input); v != NoViolation {
		logging.SandboxDebug("rejected %q before filesystem access: %s", input, v)
		return Path{Input: input, Violation: v}
	}

	joined := filepath.Join(r.root, filepath.FromSlash(input))
	canon, err := canonicalize(joined)
	if err != nil || !within(r.root, canon) {
		logging.Sandbox("path %q escapes sandbox (canonical=%q)", input, canon)
		return Path{Input: input, Violation: OutsideRoot}
	}
	return Path{Input: input, Resolved: canon}
}

// Rel returns abs relative to the root using forward slashes.
// Paths outside the root are returned unchanged.
func (r *Resolver) Rel(abs string) string {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return filepath.ToSlash(rel)
}

// lexicalViolation inspects the raw string only.
func lexicalViolation(input string) Violation {
	if input == "" {
		return NoViolation
	}
	if filepath.IsAbs(input) || strings.HasPrefix(input, "/") || strings.HasPrefix(input, `\`) ||
		filepath.VolumeName(input) != "" || (len(input) >= 2 && input[1] == ':') {
		return AbsoluteInput
	}
	for _, seg := range strings.FieldsFunc(input, func(c rune) bool { return c == '/' || c == '\\' }) {
		if seg == ".." {
			return Traversal
		}
	}
	return NoViolation
}

// canonicalize evaluates symlinks on the longest existing prefix of p and
// re-appends the missing tail, so paths to files that do not exist yet
// (write targets, typos) still get a canonical form.
func canonicalize(p string) (string, error) {
	p = filepath.Clean(p)
	var tail []string
	cur := p
	for {
		resolved, err := evalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}
		// A dangling symlink exists as an entry but has no target yet.
		// Writing through it would create a file wherever it points.
		if _, lerr := os.Lstat(cur); lerr == nil {
			return "", fmt.Errorf("unresolvable link: %s", cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

func within(root, p string) bool {
	if p == root {
		return true
	}
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return strings.HasPrefix(p, root)
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}
