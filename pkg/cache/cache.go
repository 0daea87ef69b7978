// Package cache is a namespaced store for expensive-to-obtain session
// artifacts (cookies, captured request headers). Each namespace persists to
// its own JSON file; entries expire lazily on read.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/utils"
)

// Forever is the TTL sentinel meaning the entry never expires.
const Forever time.Duration = 0

// DefaultTTL applies when Set is called with a negative TTL.
const DefaultTTL = 6 * time.Hour

type entry struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	TTL       int64           `json:"ttl"`       // milliseconds, 0 = never expires
}

// Store holds any number of namespaces, each backed by one JSON file under
// dir. Disk failures are non-fatal: the namespace simply stays memory-only.
type Store struct {
	dir string

	mu         sync.Mutex
	namespaces map[string]map[string]entry

	now func() time.Time
}

func New(dir string) *Store {
	return &Store{
		dir:        dir,
		namespaces: make(map[string]map[string]entry),
		now:        time.Now,
	}
}

func (s *Store) path(namespace string) string {
	return filepath.Join(s.dir, namespace+".json")
}

// Load reads a namespace from disk into memory. A missing or unreadable file
// leaves the namespace empty; the error is informational only.
func (s *Store) Load(namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.namespaces[namespace]; !ok {
		s.namespaces[namespace] = make(map[string]entry)
	}

	raw, err := os.ReadFile(s.path(namespace))
	if err != nil {
		return err
	}

	parsed := make(map[string]entry)
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return err
	}
	s.namespaces[namespace] = parsed
	return nil
}

// Persist writes a namespace back to disk. Failures degrade to an in-memory
// cache and are only logged by callers that care.
func (s *Store) Persist(namespace string) error {
	s.mu.Lock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	raw, err := json.MarshalIndent(ns, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path(namespace), raw, 0o644)
}

// Get unmarshals the cached value for namespace/key into out and reports
// whether a live entry was found. Expired entries are removed on access.
func (s *Store) Get(namespace, key string, out any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return false
	}
	e, ok := ns[key]
	if !ok {
		return false
	}

	if e.TTL != 0 && s.now().UnixMilli()-e.Timestamp > e.TTL {
		delete(ns, key)
		return false
	}

	if out == nil {
		return true
	}
	if err := json.Unmarshal(e.Value, out); err != nil {
		utils.Log.Debugf("cache: corrupt entry %s/%s dropped: %v", namespace, key, err)
		delete(ns, key)
		return false
	}
	return true
}

// GetString is a convenience wrapper for string-valued artifacts.
func (s *Store) GetString(namespace, key string) (string, bool) {
	var v string
	if !s.Get(namespace, key, &v) {
		return "", false
	}
	return v, true
}

// Set stores a value. Last writer wins; concurrent refreshers of the same
// artifact key are a benign race because artifacts are advisory.
func (s *Store) Set(namespace, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		utils.Log.Debugf("cache: unencodable value for %s/%s dropped: %v", namespace, key, err)
		return
	}
	if ttl < 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]entry)
		s.namespaces[namespace] = ns
	}
	ns[key] = entry{
		Value:     raw,
		Timestamp: s.now().UnixMilli(),
		TTL:       ttl.Milliseconds(),
	}
}

// Has reports whether a live entry exists without decoding it.
func (s *Store) Has(namespace, key string) bool {
	return s.Get(namespace, key, nil)
}

// Delete removes a single key, typically to invalidate a stale artifact.
func (s *Store) Delete(namespace, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.namespaces[namespace]; ok {
		delete(ns, key)
	}
}

// Clear empties a namespace.
func (s *Store) Clear(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces[namespace] = make(map[string]entry)
}

// Prune drops expired entries from a namespace.
func (s *Store) Prune(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return
	}
	nowMs := s.now().UnixMilli()
	for key, e := range ns {
		if e.TTL != 0 && nowMs-e.Timestamp > e.TTL {
			delete(ns, key)
		}
	}
}
