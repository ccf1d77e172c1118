package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points HOME and ISSUEHUB_CONFIG at a temp dir and clears the
// ISSUEHUB_* variables so tests don't see the developer's environment.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("ISSUEHUB_CONFIG", filepath.Join(dir, "config.yaml"))
	for _, key := range []string{
		"ISSUEHUB_BASE_URL", "ISSUEHUB_TIMEOUT", "ISSUEHUB_LOGIN_PATH", "LOG_LEVEL",
		"ISSUEHUB_LOG_FILE", "ISSUEHUB_SESSION_BACKEND", "ISSUEHUB_SESSION_PATH", "ISSUEHUB_REDIS_URL",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "http://localhost:8000/api" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s", cfg.Timeout)
	}
	if cfg.LoginPath != "/login" {
		t.Errorf("LoginPath = %q", cfg.LoginPath)
	}
	if cfg.Session.Backend != BackendFile {
		t.Errorf("Session.Backend = %q", cfg.Session.Backend)
	}
	want := filepath.Join(dir, ".issuehub", "session.json")
	if cfg.Session.Path != want {
		t.Errorf("Session.Path = %q, want %q", cfg.Session.Path, want)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := isolate(t)

	yamlBody := `base_url: https://hub.example.com/api/
timeout: 45s
session:
  backend: sqlite
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://hub.example.com/api" {
		t.Errorf("trailing slash not trimmed: %q", cfg.BaseURL)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %s", cfg.Timeout)
	}
	if !strings.HasSuffix(cfg.Session.Path, "session.db") {
		t.Errorf("sqlite default path = %q", cfg.Session.Path)
	}

	t.Setenv("ISSUEHUB_BASE_URL", "http://127.0.0.1:9000/api")
	t.Setenv("ISSUEHUB_TIMEOUT", "5")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "http://127.0.0.1:9000/api" {
		t.Errorf("env did not override file: %q", cfg.BaseURL)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("bare seconds not parsed: %s", cfg.Timeout)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		errContains string
	}{
		{"bad scheme", map[string]string{"ISSUEHUB_BASE_URL": "ftp://x"}, "http or https"},
		{"missing host", map[string]string{"ISSUEHUB_BASE_URL": "http://"}, "host"},
		{"unknown backend", map[string]string{"ISSUEHUB_SESSION_BACKEND": "etcd"}, "unknown session backend"},
		{"redis without url", map[string]string{"ISSUEHUB_SESSION_BACKEND": "redis"}, "ISSUEHUB_REDIS_URL"},
		{"relative login path", map[string]string{"ISSUEHUB_LOGIN_PATH": "login"}, "login_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.errContains)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q should contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := Default()
	cfg.BaseURL = "https://hub.example.com/api"
	cfg.Session.Backend = BackendMemory
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Setenv("ISSUEHUB_CONFIG", path)
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.BaseURL != cfg.BaseURL || loaded.Session.Backend != BackendMemory {
		t.Errorf("loaded %+v", loaded)
	}
}
