package capability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ToggleStore persists capability enable overrides as a JSON document keyed
// by capability name. The document is read once at startup and rewritten in
// full on every change.
type ToggleStore struct {
	path string

	mu   sync.Mutex
	vals map[string]bool
}

func NewToggleStore(path string) *ToggleStore {
	return &ToggleStore{path: path, vals: make(map[string]bool)}
}

// Load reads the override document. A missing or unreadable file yields an
// empty override set.
func (s *ToggleStore) Load() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]bool{}
	}
	vals := make(map[string]bool)
	if err := json.Unmarshal(data, &vals); err != nil {
		fmt.Printf("Warning: toggle file %s is malformed, ignoring: %v\n", s.path, err)
		return map[string]bool{}
	}
	s.vals = vals

	out := make(map[string]bool, len(vals))
	for k, v := range vals {
		out[k] = v
	}
	return out
}

// Set records one override and rewrites the document.
func (s *ToggleStore) Set(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vals[name] = enabled
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating toggle dir: %w", err)
	}
	data, err := json.MarshalIndent(s.vals, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding toggles: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing toggles: %w", err)
	}
	return nil
}
