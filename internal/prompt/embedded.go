// Package prompt assembles the investigation and review prompts from atoms
// baked into the binary.
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"ultron/internal/logging"
)

// embeddedAtoms contains all YAML files from atoms/ baked into the binary.
//
//go:embed atoms
var embeddedAtoms embed.FS

var (
	corpusOnce sync.Once
	corpus     []*PromptAtom
	corpusErr  error
)

// Corpus returns the embedded atoms, loading them on first use.
func Corpus() ([]*PromptAtom, error) {
	corpusOnce.Do(func() {
		corpus, corpusErr = loadCorpus(embeddedAtoms)
		if corpusErr == nil {
			logging.Boot("Loaded %d prompt atoms", len(corpus))
		}
	})
	return corpus, corpusErr
}

func loadCorpus(fsys fs.FS) ([]*PromptAtom, error) {
	var all []*PromptAtom
	seen := make(map[string]string)

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		atoms, err := parseAtoms(fsys, path)
		if err != nil {
			return err
		}
		for _, a := range atoms {
			if prev, dup := seen[a.ID]; dup {
				return fmt.Errorf("duplicate atom %s in %s (first defined in %s)", a.ID, path, prev)
			}
			seen[a.ID] = path
			all = append(all, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt atoms: %w", err)
	}
	return all, nil
}

func parseAtoms(fsys fs.FS, path string) ([]*PromptAtom, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var atoms []*PromptAtom
	if err := yaml.Unmarshal(data, &atoms); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for _, a := range atoms {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return atoms, nil
}
