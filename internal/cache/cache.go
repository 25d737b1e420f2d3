package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ultron/internal/logging"
)

// DefaultTTL is the expiry window when none is configured.
const DefaultTTL = 24 * time.Hour

// ErrInvalidFingerprint is returned for keys that are not SHA-256 hex digests.
var ErrInvalidFingerprint = errors.New("invalid cache fingerprint")

// Payload is a cacheable result. Payloads carrying an error are never
// stored, and a stored payload must still pass Validate when loaded.
type Payload interface {
	ErrorMessage() string
	Validate() error
}

// Store is a directory of {fingerprint}.json records. It is safe for
// concurrent use; racing writers on one fingerprint resolve last-writer-wins.
type Store[T Payload] struct {
	dir   string
	ttl   time.Duration
	alloc func() T
	now   func() time.Time
	// chtimes stamps a record with its creation time.
	chtimes func(name string, atime, mtime time.Time) error
	mu      sync.RWMutex
}

// New creates the cache directory if needed. alloc returns a fresh value
// to decode a record into.
func New[T Payload](dir string, ttl time.Duration, alloc func() T) (*Store[T], error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store[T]{dir: dir, ttl: ttl, alloc: alloc, now: time.Now, chtimes: os.Chtimes}, nil
}

// Dir returns the cache directory.
func (s *Store[T]) Dir() string { return s.dir }

func (s *Store[T]) path(fp string) string {
	return filepath.Join(s.dir, fp+".json")
}

// Get returns the payload stored under fp. Expired, unreadable and
// invalid records are treated as absent and removed.
func (s *Store[T]) Get(fp string) (T, bool) {
	var zero T
	if s == nil || !validFingerprint(fp) {
		return zero, false
	}

	s.mu.RLock()
	payload, err := s.load(fp)
	s.mu.RUnlock()

	switch {
	case err == nil:
		logging.CacheDebug("Cache hit: %s", fp)
		return payload, true
	case errors.Is(err, os.ErrNotExist):
		logging.CacheDebug("Cache miss: %s", fp)
	default:
		logging.Cache("Discarding cache entry %s: %v", fp, err)
		s.remove(fp)
	}
	return zero, false
}

var errExpired = errors.New("entry expired")

func (s *Store[T]) load(fp string) (T, error) {
	var zero T
	path := s.path(fp)
	info, err := os.Stat(path)
	if err != nil {
		return zero, err
	}
	if s.expired(info) {
		return zero, errExpired
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, err
	}
	payload := s.alloc()
	if err := json.Unmarshal(data, payload); err != nil {
		return zero, fmt.Errorf("corrupt record: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return zero, fmt.Errorf("record failed validation: %w", err)
	}
	return payload, nil
}

func (s *Store[T]) expired(info os.FileInfo) bool {
	return s.now().Sub(info.ModTime()) > s.ttl
}

func (s *Store[T]) remove(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(fp)); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Get(logging.CategoryCache).Warn("Failed to remove cache entry %s: %v", fp, err)
	}
}

// Put stores payload under fp. Payloads with a non-empty error are skipped.
// The record is written to a temporary file and renamed into place.
func (s *Store[T]) Put(fp string, payload T) error {
	if s == nil {
		return nil
	}
	if !validFingerprint(fp) {
		return fmt.Errorf("%w: %q", ErrInvalidFingerprint, fp)
	}
	if msg := payload.ErrorMessage(); msg != "" {
		logging.CacheDebug("Not caching %s: payload carries error %q", fp, msg)
		return nil
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+fp+"-*")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache record: %w", err)
	}
	// Creation time is the record's mtime; stamp it from the store clock.
	// If stamping fails the record keeps the filesystem write time, which
	// only drifts from the store clock when a test clock is installed.
	now := s.now()
	if err := s.chtimes(tmpName, now, now); err != nil {
		logging.Get(logging.CategoryCache).Warn("Failed to stamp cache record %s: %v", fp, err)
	}
	if err := os.Rename(tmpName, s.path(fp)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit cache record: %w", err)
	}
	logging.CacheDebug("Cached %s (%d bytes)", fp, len(data))
	return nil
}

// Prune removes every expired or stray temporary record and returns how
// many files were deleted.
func (s *Store[T]) Prune() (int, error) {
	removed, err := s.sweep(false)
	if err != nil {
		return 0, err
	}
	logging.Cache("Pruned %d cache entries from %s", removed, s.dir)
	return removed, nil
}

// Clear removes every record regardless of age. Files that are not cache
// records are left alone.
func (s *Store[T]) Clear() (int, error) {
	removed, err := s.sweep(true)
	if err != nil {
		return 0, err
	}
	logging.Cache("Cleared %d cache entries from %s", removed, s.dir)
	return removed, nil
}

func (s *Store[T]) sweep(all bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		stale := strings.HasPrefix(name, ".tmp-")
		if !stale {
			if !strings.HasSuffix(name, ".json") || !validFingerprint(strings.TrimSuffix(name, ".json")) {
				continue
			}
			if all {
				stale = true
			} else if info, err := e.Info(); err == nil {
				stale = s.expired(info)
			}
		}
		if !stale {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}
