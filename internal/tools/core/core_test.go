package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ultron/internal/sandbox"
	"ultron/internal/tools"
)

type fixture struct {
	reg  *tools.Registry
	env  *tools.Env
	root string
}

func setup(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}

	resolver, err := sandbox.NewResolver(root)
	require.NoError(t, err)

	limits := tools.DefaultLimits()
	limits.TaintSources = []string{"request.args", "input("}
	limits.TaintSinks = []string{"os.system", "eval("}

	reg := tools.NewRegistry()
	require.NoError(t, RegisterAll(reg))
	return &fixture{reg: reg, env: tools.NewEnv("test", resolver, limits), root: resolver.Root()}
}

func (f *fixture) call(name string, args map[string]any) tools.Observation {
	return f.reg.Dispatch(context.Background(), name, args, f.env)
}

func TestRegisterAll(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, RegisterAll(reg))
	assert.Equal(t, []string{
		"find_taint_sources_and_sinks",
		"get_directory_tree",
		"list_functions",
		"read_file_content",
		"search_codebase",
		"search_pattern_in_file",
		"write_to_file",
	}, reg.Names())
}

// =============================================================================
// READ / WRITE
// =============================================================================

func TestReadFileContent(t *testing.T) {
	f := setup(t, map[string]string{"src/app.py": "print('hi')\n"})

	obs := f.call("read_file_content", map[string]any{"file_path": "src/app.py"})
	assert.False(t, obs.Failed)
	assert.Equal(t, "print('hi')\n", obs.Text)
	assert.Equal(t, 1, f.env.Files.Len())
}

func TestReadFileContent_Directory(t *testing.T) {
	f := setup(t, map[string]string{"src/app.py": "", "src/lib/x.py": ""})

	obs := f.call("read_file_content", map[string]any{"file_path": "src"})
	assert.Contains(t, obs.Text, "is a directory")
	assert.Contains(t, obs.Text, "app.py")
	assert.Contains(t, obs.Text, "lib/")
	assert.NotContains(t, obs.Text, "not found")
}

func TestReadFileContent_MissingListsAncestor(t *testing.T) {
	f := setup(t, map[string]string{"src/app.py": ""})

	obs := f.call("read_file_content", map[string]any{"file_path": "src/ap.py"})
	assert.Contains(t, obs.Text, "File not found")
	assert.Contains(t, obs.Text, "app.py")
}

func TestReadFileContent_Traversal(t *testing.T) {
	f := setup(t, nil)

	obs := f.call("read_file_content", map[string]any{"file_path": "../../etc/passwd"})
	assert.True(t, obs.Failed)
	assert.Contains(t, obs.Text, "traversal")
}

func TestReadFileContent_LenientAndCapped(t *testing.T) {
	f := setup(t, map[string]string{
		"bad.txt": "ok \xff\xfe end",
		"big.txt": strings.Repeat("a", 500),
		"bin.dat": "ELF\x00\x01\x02",
	})
	f.env.Limits.MaxReadBytes = 100

	obs := f.call("read_file_content", map[string]any{"file_path": "bad.txt"})
	assert.False(t, obs.Failed)
	assert.Contains(t, obs.Text, "ok ")
	assert.Contains(t, obs.Text, " end")

	obs = f.call("read_file_content", map[string]any{"file_path": "big.txt"})
	assert.True(t, strings.HasPrefix(obs.Text, strings.Repeat("a", 100)+"\n"))
	assert.Contains(t, obs.Text, "showing first 100 of 500 bytes")

	obs = f.call("read_file_content", map[string]any{"file_path": "bin.dat"})
	assert.Contains(t, obs.Text, "binary file")
}

func TestWriteToFile(t *testing.T) {
	f := setup(t, map[string]string{"poc.py": "old"})

	// Prime the session cache so the write has something to invalidate.
	f.call("read_file_content", map[string]any{"file_path": "poc.py"})

	obs := f.call("write_to_file", map[string]any{"file_path": "poc.py", "content": "new content"})
	require.False(t, obs.Failed, obs.Text)
	assert.Equal(t, "Successfully wrote 11 bytes to 'poc.py'.", obs.Text)

	obs = f.call("read_file_content", map[string]any{"file_path": "poc.py"})
	assert.Equal(t, "new content", obs.Text)

	obs = f.call("write_to_file", map[string]any{"file_path": "tests/deep/harness.c", "content": "int main(){}"})
	require.False(t, obs.Failed, obs.Text)
	data, err := os.ReadFile(filepath.Join(f.root, "tests", "deep", "harness.c"))
	require.NoError(t, err)
	assert.Equal(t, "int main(){}", string(data))
}

func TestWriteToFile_Violations(t *testing.T) {
	f := setup(t, map[string]string{"dir/x": ""})

	for _, p := range []string{"../escape.txt", "/tmp/escape.txt"} {
		obs := f.call("write_to_file", map[string]any{"file_path": p, "content": "x"})
		assert.True(t, obs.Failed, p)
	}
	_, err := os.Stat(filepath.Join(filepath.Dir(f.root), "escape.txt"))
	assert.True(t, os.IsNotExist(err))

	obs := f.call("write_to_file", map[string]any{"file_path": "dir", "content": "x"})
	assert.True(t, obs.Failed)
	assert.Contains(t, obs.Text, "is a directory")
}

func TestDirectoryTree(t *testing.T) {
	f := setup(t, map[string]string{"a/b.go": "", "c.txt": "", ".git/HEAD": ""})

	obs := f.call("get_directory_tree", nil)
	assert.Contains(t, obs.Text, "    └── c.txt")
	assert.Contains(t, obs.Text, "    ├── a/")
	assert.NotContains(t, obs.Text, ".git")

	obs = f.call("get_directory_tree", map[string]any{"path": "a"})
	assert.True(t, strings.HasPrefix(obs.Text, "a/\n    └── b.go"), obs.Text)
}

func TestDirectoryTree_FileTarget(t *testing.T) {
	f := setup(t, map[string]string{"src/app.py": "print(1)\n"})

	obs := f.call("get_directory_tree", map[string]any{"path": "src/app.py"})
	assert.True(t, obs.Failed)
	assert.Contains(t, obs.Text, "'src/app.py' is a file, not a directory")
	assert.NotContains(t, obs.Text, "not found")

	obs = f.call("get_directory_tree", map[string]any{"path": "src/missing"})
	assert.Contains(t, obs.Text, "not found")
}

// =============================================================================
// SEARCH
// =============================================================================

func TestSearchPatternInFile(t *testing.T) {
	f := setup(t, map[string]string{"app.py": "import os\nx = 1\nos.system(cmd)\n"})

	obs := f.call("search_pattern_in_file", map[string]any{"file_path": "app.py", "pattern": `os\.`})
	assert.Equal(t, "Found 1 match(es) for pattern 'os\\.' in 'app.py':\nLine 3: os.system(cmd)", obs.Text)

	obs = f.call("search_pattern_in_file", map[string]any{"file_path": "app.py", "pattern": "nothing"})
	assert.Contains(t, obs.Text, "No matches found")

	obs = f.call("search_pattern_in_file", map[string]any{"file_path": "app.py", "pattern": "("})
	assert.True(t, obs.Failed)
	assert.Contains(t, obs.Text, "invalid regex")
}

func TestSearchCodebase_Bounded(t *testing.T) {
	files := map[string]string{"node_modules/dep.js": "TODO\n", ".hidden/x": "TODO\n"}
	for i := 0; i < 10; i++ {
		files[filepath.ToSlash(filepath.Join("pkg", string(rune('a'+i))+".go"))] = "// TODO one\n// TODO two\n"
	}
	f := setup(t, files)
	f.env.Limits.MaxSearchMatches = 5
	f.env.Limits.ExcludedDirs = []string{"node_modules"}

	obs := f.call("search_codebase", map[string]any{"pattern": "TODO"})
	lines := strings.Split(obs.Text, "\n")
	assert.Len(t, lines, 6)
	assert.Equal(t, "pkg/a.go:1: // TODO one", lines[0])
	assert.Contains(t, lines[5], "stopped after 5 matches")
	assert.NotContains(t, obs.Text, "node_modules")
	assert.NotContains(t, obs.Text, ".hidden")
}

func TestSearchCodebase_FilePatternAndPath(t *testing.T) {
	f := setup(t, map[string]string{"a/x.c": "strcpy(buf, s);\n", "a/x.h": "strcpy\n", "b/y.c": "strcpy(a, b);\n"})

	obs := f.call("search_codebase", map[string]any{"pattern": "strcpy", "path": "a", "file_pattern": "*.c"})
	assert.Equal(t, "a/x.c:1: strcpy(buf, s);", obs.Text)

	obs = f.call("search_codebase", map[string]any{"pattern": "strcpy", "path": "a/x.c"})
	assert.True(t, obs.Failed)
}

// =============================================================================
// TAINT
// =============================================================================

func TestTaint_SeparatesSourcesAndSinks(t *testing.T) {
	f := setup(t, map[string]string{"app.py": "q = request.args['q']\nos.system(q)\nprint(q)\n"})

	obs := f.call("find_taint_sources_and_sinks", map[string]any{"file_path": "app.py"})
	want := strings.Join([]string{
		"Taint scan of 'app.py':",
		"--- SOURCES (1) ---",
		"Line 1 [request.args]: q = request.args['q']",
		"--- SINKS (1) ---",
		"Line 2 [os.system]: os.system(q)",
	}, "\n")
	assert.Equal(t, want, obs.Text)
}

func TestTaint_NoMatchHint(t *testing.T) {
	f := setup(t, map[string]string{"clean.py": "x = 1\n"})

	obs := f.call("find_taint_sources_and_sinks", map[string]any{"file_path": "clean.py"})
	assert.Contains(t, obs.Text, "No taint sources or sinks matched")
	assert.Contains(t, obs.Text, NoTaintHint)
}

func TestTaint_CustomLists(t *testing.T) {
	f := setup(t, map[string]string{"a.c": "gets(buf);\n"})

	obs := f.call("find_taint_sources_and_sinks", map[string]any{
		"file_path": "a.c",
		"sinks":     []any{"gets("},
	})
	assert.Contains(t, obs.Text, "--- SOURCES (0) ---\n(none)")
	assert.Contains(t, obs.Text, "Line 1 [gets(]")
}

// =============================================================================
// LIST FUNCTIONS
// =============================================================================

func TestListFunctions_Python(t *testing.T) {
	src := "def top(a, b):\n    pass\n\nclass Handler:\n    @staticmethod\n    def handle(self, req):\n        pass\n"
	f := setup(t, map[string]string{"h.py": src})

	obs := f.call("list_functions", map[string]any{"file_path": "h.py"})
	require.False(t, obs.Failed, obs.Text)
	assert.Contains(t, obs.Text, "Line 1-2: top(a, b)")
	assert.Contains(t, obs.Text, "Handler.handle(self, req)")
}

func TestListFunctions_Go(t *testing.T) {
	src := "package x\n\nfunc Free(n int) int { return n }\n\ntype S struct{}\n\nfunc (s *S) Method() {}\n"
	defs, hasErr, err := ListFunctions(context.Background(), "x.go", []byte(src))
	require.NoError(t, err)
	assert.False(t, hasErr)
	require.Len(t, defs, 2)
	assert.Equal(t, "Free", defs[0].QualifiedName())
	assert.Equal(t, "(n int)", defs[0].Params)
	assert.Equal(t, "S.Method", defs[1].QualifiedName())
	assert.Equal(t, 7, defs[1].StartLine)
}

func TestListFunctions_JavaScript(t *testing.T) {
	src := "function a(x) {}\nconst b = y => y\nclass C { m(z) {} }\n"
	defs, _, err := ListFunctions(context.Background(), "x.js", []byte(src))
	require.NoError(t, err)

	var names []string
	for _, d := range defs {
		names = append(names, d.QualifiedName()+d.Params)
	}
	assert.Equal(t, []string{"a(x)", "b(y)", "C.m(z)"}, names)
}

func TestListFunctions_NotApplicable(t *testing.T) {
	f := setup(t, map[string]string{"README.md": "# hi\n"})

	obs := f.call("list_functions", map[string]any{"file_path": "README.md"})
	assert.False(t, obs.Failed)
	assert.Contains(t, obs.Text, "not applicable")
	assert.Contains(t, obs.Text, ".md")

	_, _, err := ListFunctions(context.Background(), "x.rb", nil)
	assert.ErrorIs(t, err, ErrNotParsable)
}
