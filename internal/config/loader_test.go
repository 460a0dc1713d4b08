package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Agent.Model != def.Agent.Model {
		t.Errorf("expected default model %q, got %q", def.Agent.Model, cfg.Agent.Model)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"agent": map[string]any{
			"model":         "gpt-4o",
			"maxIterations": 5,
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.Model != "gpt-4o" {
		t.Errorf("expected model %q, got %q", "gpt-4o", cfg.Agent.Model)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("expected maxIterations 5, got %d", cfg.Agent.MaxIterations)
	}
	// Fields absent from the document keep their defaults.
	if cfg.Agent.MaxHistory != DefaultConfig().Agent.MaxHistory {
		t.Errorf("expected default maxHistory, got %d", cfg.Agent.MaxHistory)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid JSON (falls back to default), got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Agent.Model != def.Agent.Model {
		t.Errorf("expected default model %q, got %q", def.Agent.Model, cfg.Agent.Model)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := DefaultConfig()
	original.Agent.Model = "claude-sonnet-4-20250514"
	original.Memory.CompactMinQueue = 9

	if err := Save(&original, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Agent.Model != original.Agent.Model {
		t.Errorf("model mismatch: got %q, want %q", loaded.Agent.Model, original.Agent.Model)
	}
	if loaded.Memory.CompactMinQueue != original.Memory.CompactMinQueue {
		t.Errorf("compactMinQueue mismatch: got %d, want %d", loaded.Memory.CompactMinQueue, original.Memory.CompactMinQueue)
	}
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected permissions 0600, got %04o", perm)
	}
}
