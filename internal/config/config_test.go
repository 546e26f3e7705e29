package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Error("exists should be false for a missing file")
	}
	if resolved != path {
		t.Errorf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Server.HTTPURL != defaultHTTPURL {
		t.Errorf("HTTPURL = %q, want default", cfg.Server.HTTPURL)
	}
	if cfg.Sync.MaxChunkBytes != defaultMaxChunkBytes {
		t.Errorf("MaxChunkBytes = %d, want default", cfg.Sync.MaxChunkBytes)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
http_url = "http://localhost:9000"
socket_url = "ws://localhost:9000/sync"

[sync]
max_chunk_bytes = 8192
backoff_base_millis = 100

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Error("exists should be true")
	}
	if cfg.Server.HTTPURL != "http://localhost:9000" {
		t.Errorf("HTTPURL = %q", cfg.Server.HTTPURL)
	}
	if cfg.Sync.MaxChunkBytes != 8192 {
		t.Errorf("MaxChunkBytes = %d", cfg.Sync.MaxChunkBytes)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	// Untouched values retain defaults.
	if cfg.Sync.BackoffMaxMillis != defaultBackoffMaxMillis {
		t.Errorf("BackoffMaxMillis = %d, want default", cfg.Sync.BackoffMaxMillis)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing http url", func(c *Config) { c.Server.HTTPURL = "" }, "server.http_url"},
		{"bad socket scheme", func(c *Config) { c.Server.SocketURL = "https://x" }, "server.socket_url"},
		{"tiny chunk", func(c *Config) { c.Sync.MaxChunkBytes = 16 }, "max_chunk_bytes"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.normalize(); err != nil {
				t.Fatal(err)
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestCredentialPrecedence(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenPath, []byte("file-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Server.TokenFile = tokenPath
	cred, err := cfg.Credential()
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if cred != "file-token" {
		t.Errorf("Credential = %q, want file-token", cred)
	}

	cfg.Server.Token = "inline-token"
	cred, err = cfg.Credential()
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if cred != "inline-token" {
		t.Errorf("inline token should win, got %q", cred)
	}

	cfg.Server.Token = ""
	cfg.Server.TokenFile = ""
	cred, err = cfg.Credential()
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if cred != "" {
		t.Errorf("guest mode should yield empty credential, got %q", cred)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Paths.CacheDir = filepath.Join(dir, "cache")
	cfg.Paths.MediaCacheDir = filepath.Join(dir, "media")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, d := range []string{cfg.Paths.CacheDir, cfg.Paths.MediaCacheDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("directory %q not created", d)
		}
	}
}
