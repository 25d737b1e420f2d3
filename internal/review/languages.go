package review

import (
	"path/filepath"
	"sort"
	"strings"
)

// AutoLanguage asks for the language to be detected from the file name.
const AutoLanguage = "auto"

// languageExtensions maps review languages to the file extensions they cover.
var languageExtensions = map[string][]string{
	"python":     {".py", ".pyw", ".pyi"},
	"javascript": {".js", ".jsx", ".mjs"},
	"typescript": {".ts", ".tsx"},
	"java":       {".java"},
	"c++":        {".cpp", ".hpp", ".cc", ".h", ".cxx"},
	"csharp":     {".cs"},
	"go":         {".go"},
	"rust":       {".rs"},
	"php":        {".php", ".phtml", ".php3", ".php4", ".php5", ".phps"},
	"ruby":       {".rb", ".rbw"},
	"swift":      {".swift"},
	"kotlin":     {".kt", ".kts"},
	"html":       {".html", ".htm"},
	"css":        {".css"},
	"sql":        {".sql"},
}

var extensionLanguage = func() map[string]string {
	m := make(map[string]string)
	for lang, exts := range languageExtensions {
		for _, ext := range exts {
			m[ext] = lang
		}
	}
	return m
}()

// DetectLanguage returns the review language for path from its extension.
func DetectLanguage(path string) (string, bool) {
	lang, ok := extensionLanguage[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Languages lists the languages DetectLanguage can return, sorted.
func Languages() []string {
	out := make([]string, 0, len(languageExtensions))
	for lang := range languageExtensions {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
