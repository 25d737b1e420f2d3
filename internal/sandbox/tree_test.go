package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_Format(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	root := filepath.Join(base, "proj")
	for _, d := range []string{"b", "a/inner", ".git", "__pycache__", "venv"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0755))
	}
	for _, f := range []string{"z.txt", "m.go", "a/x.py", "a/inner/y.c", "b/w.js", ".git/HEAD", "venv/bin"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), nil, 0644))
	}

	out, err := Tree(root, 0)
	require.NoError(t, err)

	want := strings.Join([]string{
		"proj/",
		"    └── m.go",
		"    └── z.txt",
		"    ├── a/",
		"        └── x.py",
		"        ├── inner/",
		"            └── y.c",
		"    ├── b/",
		"        └── w.js",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestTree_MaxEntries(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, string(rune('a'+i))+".txt"), nil, 0644))
	}

	r, err := NewResolver(root)
	require.NoError(t, err)

	out, err := r.Tree(TreeOptions{MaxEntries: 3})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 5)
	assert.Equal(t, "... (7 more entries not shown)", lines[4])
}

func TestTree_CustomExclude(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "dep"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "venv"), 0755))

	r, err := NewResolver(root)
	require.NoError(t, err)

	out, err := r.Tree(TreeOptions{Exclude: []string{"node_modules"}})
	require.NoError(t, err)
	assert.NotContains(t, out, "node_modules")
	assert.Contains(t, out, "venv/")
}
