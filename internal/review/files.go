package review

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CollectOptions controls which files CollectFiles returns.
type CollectOptions struct {
	// Recursive descends into subdirectories.
	Recursive bool
	// ExcludedDirs lists directory names that are never entered.
	ExcludedDirs []string
	// Exclude holds glob patterns matched against the base name and the
	// slash-separated path relative to the root.
	Exclude []string
}

// CollectFiles lists the reviewable files under root in walk order. A root
// that is a file is returned as is. Dot-directories are skipped, as are
// files whose language cannot be detected.
func CollectFiles(root string, opts CollectOptions) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	for _, pattern := range opts.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	skip := make(map[string]bool, len(opts.ExcludedDirs))
	for _, d := range opts.ExcludedDirs {
		skip[d] = true
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if !opts.Recursive || strings.HasPrefix(name, ".") || skip[name] || excluded(opts.Exclude, name, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || excluded(opts.Exclude, d.Name(), rel) {
			return nil
		}
		if _, ok := DetectLanguage(path); !ok {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

func excluded(patterns []string, name, rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
	}
	return false
}
