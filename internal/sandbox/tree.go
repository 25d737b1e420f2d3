package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExcludedDirs are skipped by Tree in addition to dot-directories.
var DefaultExcludedDirs = []string{"__pycache__", "venv"}

// TreeOptions bounds the directory index.
type TreeOptions struct {
	// MaxEntries caps the number of lines after the root line. Zero means unbounded.
	MaxEntries int
	// Exclude lists directory names to skip. Nil uses DefaultExcludedDirs.
	Exclude []string
}

// Tree renders the sandbox as an indented listing:
//
//	project/
//	    └── main.go
//	    ├── pkg/
//	        └── util.go
//
// Each directory lists its files before descending into subdirectories.
// Files and directories are sorted by name.
func (r *Resolver) Tree(opts TreeOptions) (string, error) {
	exclude := opts.Exclude
	if exclude == nil {
		exclude = DefaultExcludedDirs
	}
	skip := make(map[string]bool, len(exclude))
	for _, d := range exclude {
		skip[d] = true
	}

	w := &treeWriter{max: opts.MaxEntries, skip: skip}
	w.lines = append(w.lines, filepath.Base(r.root)+"/")
	if err := w.walk(r.root, 0); err != nil {
		return "", err
	}
	if w.omitted > 0 {
		w.lines = append(w.lines, fmt.Sprintf("... (%d more entries not shown)", w.omitted))
	}
	return strings.Join(w.lines, "\n"), nil
}

type treeWriter struct {
	lines   []string
	count   int
	max     int
	omitted int
	skip    map[string]bool
}

func (w *treeWriter) emit(line string) {
	if w.max > 0 && w.count >= w.max {
		w.omitted++
		return
	}
	w.count++
	w.lines = append(w.lines, line)
}

func (w *treeWriter) walk(dir string, level int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if level == 0 {
			return fmt.Errorf("failed to index directory: %w", err)
		}
		// Unreadable subdirectories are listed but not descended into.
		return nil
	}

	var files, dirs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if strings.HasPrefix(name, ".") || w.skip[name] {
				continue
			}
			dirs = append(dirs, name)
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	sort.Strings(dirs)

	sub := strings.Repeat("    ", level+1)
	for _, f := range files {
		w.emit(sub + "└── " + f)
	}
	for _, d := range dirs {
		w.emit(sub + "├── " + d + "/")
		if err := w.walk(filepath.Join(dir, d), level+1); err != nil {
			return err
		}
	}
	return nil
}

// Tree is a convenience wrapper that indexes root with default options.
func Tree(root string, maxEntries int) (string, error) {
	r, err := NewResolver(root)
	if err != nil {
		return "", err
	}
	return r.Tree(TreeOptions{MaxEntries: maxEntries})
}
