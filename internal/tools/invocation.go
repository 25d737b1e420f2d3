package tools

import (
	"os"
	"sync"
	"time"

	"ultron/internal/sandbox"
)

// Invocation is what a handler receives: validated arguments, resolved
// paths and the session environment. Handlers never see raw path strings
// for path-typed arguments; they read Paths instead.
type Invocation struct {
	Tool  string
	Args  map[string]any
	Paths map[string]sandbox.Path
	Env   *Env
}

// String returns a string argument, or "" when absent.
func (inv *Invocation) String(key string) string {
	s, _ := inv.Args[key].(string)
	return s
}

// Int returns an integer argument, or def when absent.
func (inv *Invocation) Int(key string, def int) int {
	if n, ok := inv.Args[key].(int); ok {
		return n
	}
	return def
}

// Bool returns a boolean argument, or def when absent.
func (inv *Invocation) Bool(key string, def bool) bool {
	if b, ok := inv.Args[key].(bool); ok {
		return b
	}
	return def
}

// Path returns the resolved path for a path-typed argument.
// The zero Path (not OK) is returned when the argument was absent.
func (inv *Invocation) Path(key string) sandbox.Path {
	return inv.Paths[key]
}

// Rel renders an absolute path relative to the sandbox root.
func (inv *Invocation) Rel(abs string) string {
	if inv.Env == nil || inv.Env.Sandbox == nil {
		return abs
	}
	return inv.Env.Sandbox.Rel(abs)
}

// FileCache memoizes file contents for one session. Entries are keyed by
// canonical path and invalidated when the file's size or modification time
// changes, or when a tool writes the file.
type FileCache struct {
	mu      sync.Mutex
	entries map[string]cachedFile
}

type cachedFile struct {
	content string
	size    int64
	modTime time.Time
}

// NewFileCache creates an empty session cache.
func NewFileCache() *FileCache {
	return &FileCache{entries: make(map[string]cachedFile)}
}

// Get returns cached content when the file is unchanged on disk.
func (c *FileCache) Get(path string, info os.FileInfo) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok || e.size != info.Size() || !e.modTime.Equal(info.ModTime()) {
		return "", false
	}
	return e.content, true
}

// Put stores content read from path.
func (c *FileCache) Put(path string, info os.FileInfo, content string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = cachedFile{content: content, size: info.Size(), modTime: info.ModTime()}
}

// Invalidate drops a path.
func (c *FileCache) Invalidate(path string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Len returns the number of cached files.
func (c *FileCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
