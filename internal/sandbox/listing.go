package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxListing caps how many entries a recovery listing shows.
const maxListing = 200

// ListDir returns the immediate entries of a resolved directory, sorted,
// with directories suffixed by "/".
func (r *Resolver) ListDir(p Path) ([]string, error) {
	if err := p.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p.Resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DescribeDirectory renders the observation returned when a file tool is
// pointed at a directory.
func (r *Resolver) DescribeDirectory(p Path) string {
	names, err := r.ListDir(p)
	if err != nil {
		return fmt.Sprintf("Error: '%s' is a directory and could not be listed: %v", p.Input, err)
	}
	return fmt.Sprintf("Error: '%s' is a directory, not a file. It contains:\n%s",
		displayName(r.Rel(p.Resolved)), formatEntries(names))
}

// NearestExisting walks up from a resolved path to the closest existing
// directory, stopping at the root.
func (r *Resolver) NearestExisting(p Path) string {
	if !p.OK() {
		return r.root
	}
	cur := p.Resolved
	for within(r.root, cur) {
		if info, err := os.Stat(cur); err == nil && info.IsDir() {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return r.root
}

// DescribeMissing renders the observation returned for a path that does
// not exist, listing the nearest existing ancestor so the caller can retry.
func (r *Resolver) DescribeMissing(p Path) string {
	dir := r.NearestExisting(p)
	names, err := r.ListDir(Path{Input: r.Rel(dir), Resolved: dir})
	if err != nil {
		return fmt.Sprintf("Error: File not found at path: '%s'.", p.Input)
	}
	return fmt.Sprintf("Error: File not found at path: '%s'. The nearest existing directory is '%s', which contains:\n%s",
		p.Input, displayName(r.Rel(dir)), formatEntries(names))
}

func displayName(rel string) string {
	if rel == "." || rel == "" {
		return "./"
	}
	return rel
}

func formatEntries(names []string) string {
	if len(names) == 0 {
		return "  (empty)"
	}
	var sb strings.Builder
	for i, n := range names {
		if i == maxListing {
			fmt.Fprintf(&sb, "  ... %d more entries\n", len(names)-maxListing)
			break
		}
		sb.WriteString("  ")
		sb.WriteString(n)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
