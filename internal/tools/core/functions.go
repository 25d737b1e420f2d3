package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"ultron/internal/logging"
	"ultron/internal/tools"
)

// grammars maps file extensions to tree-sitter languages.
var grammars = map[string]func() *sitter.Language{
	".py":  python.GetLanguage,
	".pyw": python.GetLanguage,
	".go":  golang.GetLanguage,
	".js":  javascript.GetLanguage,
	".jsx": javascript.GetLanguage,
	".mjs": javascript.GetLanguage,
	".cjs": javascript.GetLanguage,
	".ts":  typescript.GetLanguage,
	".rs":  rust.GetLanguage,
}

// SupportedExtensions lists the extensions ListFunctions can parse.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(grammars))
	for ext := range grammars {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ListFunctionsTool returns a tool for structural listing of definitions.
func ListFunctionsTool() *tools.Tool {
	return &tools.Tool{
		Name:        "list_functions",
		Description: "List function and method definitions in a source file using a real parser. Supported: " + strings.Join(SupportedExtensions(), ", "),
		Category:    tools.CategoryScan,
		Priority:    70,
		Execute:     executeListFunctions,
		Schema: tools.ToolSchema{
			Required: []string{"file_path"},
			Properties: map[string]tools.Property{
				"file_path": {
					Type:        "string",
					Description: "File path relative to the project root",
					Path:        true,
				},
			},
		},
	}
}

// FunctionDef is one function or method definition.
type FunctionDef struct {
	Name      string
	Container string // class, impl or receiver type; empty for free functions
	Params    string
	StartLine int
	EndLine   int
}

// QualifiedName returns Container.Name, or Name for free functions.
func (f FunctionDef) QualifiedName() string {
	if f.Container == "" {
		return f.Name
	}
	return f.Container + "." + f.Name
}

// ErrNotParsable is returned for files without a known grammar.
var ErrNotParsable = errors.New("no parser for file type")

// ListFunctions parses content with the grammar selected by path's
// extension. The second return value reports whether the tree had syntax
// errors, in which case the listing may be incomplete.
func ListFunctions(ctx context.Context, path string, content []byte) ([]FunctionDef, bool, error) {
	lang, ok := grammars[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, false, ErrNotParsable
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		logging.Get(logging.CategoryTools).Error("list_functions: parse failed: %s - %v", path, err)
		return nil, false, err
	}
	defer tree.Close()

	root := tree.RootNode()
	w := &defWalker{src: content}
	w.walk(root, "")
	return w.defs, root.HasError(), nil
}

type defWalker struct {
	src  []byte
	defs []FunctionDef
}

func (w *defWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func (w *defWalker) add(n *sitter.Node, name, container string, params *sitter.Node) {
	if name == "" {
		return
	}
	sig := strings.Join(strings.Fields(w.text(params)), " ")
	if !strings.HasPrefix(sig, "(") {
		sig = "(" + sig + ")"
	}
	w.defs = append(w.defs, FunctionDef{
		Name:      name,
		Container: container,
		Params:    clip(sig),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
	})
}

func (w *defWalker) walk(node *sitter.Node, container string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition", "function_declaration", "generator_function_declaration",
			"function_item", "method_definition":
			w.add(child, w.text(child.ChildByFieldName("name")), container, child.ChildByFieldName("parameters"))
			w.walkBody(child, container)

		case "method_declaration":
			recv := receiverType(w.text(child.ChildByFieldName("receiver")))
			w.add(child, w.text(child.ChildByFieldName("name")), recv, child.ChildByFieldName("parameters"))

		case "class_definition", "class_declaration", "class":
			w.walkBody(child, w.text(child.ChildByFieldName("name")))

		case "impl_item":
			w.walkBody(child, w.text(child.ChildByFieldName("type")))

		case "variable_declarator":
			value := child.ChildByFieldName("value")
			if value != nil && isFunctionValue(value.Type()) {
				params := value.ChildByFieldName("parameters")
				if params == nil {
					params = value.ChildByFieldName("parameter")
				}
				w.add(child, w.text(child.ChildByFieldName("name")), container, params)
				w.walkBody(value, container)
				continue
			}
			w.walk(child, container)

		default:
			w.walk(child, container)
		}
	}
}

func (w *defWalker) walkBody(n *sitter.Node, container string) {
	if body := n.ChildByFieldName("body"); body != nil {
		w.walk(body, container)
	}
}

func isFunctionValue(t string) bool {
	switch t {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

// receiverType extracts "Server" from "(s *Server)" or "(Server[T])".
func receiverType(recv string) string {
	recv = strings.Trim(recv, "()")
	fields := strings.Fields(recv)
	if len(fields) == 0 {
		return ""
	}
	t := strings.TrimLeft(fields[len(fields)-1], "*")
	if i := strings.IndexByte(t, '['); i >= 0 {
		t = t[:i]
	}
	return t
}

func executeListFunctions(ctx context.Context, inv *tools.Invocation) (string, error) {
	p := inv.Path("file_path")
	if obs, ok := checkRegularFile(inv.Env.Sandbox, p); !ok {
		return obs, nil
	}

	ext := strings.ToLower(filepath.Ext(p.Resolved))
	if _, ok := grammars[ext]; !ok {
		if ext == "" {
			ext = "(none)"
		}
		return fmt.Sprintf("list_functions is not applicable to '%s': files with extension %s cannot be statically parsed. Supported extensions: %s. Use read_file_content or search_pattern_in_file instead.",
			p.Input, ext, strings.Join(SupportedExtensions(), ", ")), nil
	}

	content, truncated, err := readCapped(p.Resolved, inv.Env.Limits.MaxReadBytes*10)
	if err != nil {
		return "", fmt.Errorf("could not read file '%s': %w", p.Input, err)
	}

	defs, hasErrors, err := ListFunctions(ctx, p.Resolved, content)
	if err != nil {
		return "", fmt.Errorf("could not parse '%s': %w", p.Input, err)
	}

	logging.ToolsDebug("list_functions: %s (%d definitions)", p.Input, len(defs))

	if len(defs) == 0 {
		return fmt.Sprintf("No function definitions found in '%s'.", p.Input), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Functions in '%s' (%d):\n", p.Input, len(defs))
	for _, d := range defs {
		fmt.Fprintf(&sb, "Line %d-%d: %s%s\n", d.StartLine, d.EndLine, d.QualifiedName(), d.Params)
	}
	if hasErrors || truncated {
		sb.WriteString("(file could not be parsed completely; the listing may be incomplete)\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
