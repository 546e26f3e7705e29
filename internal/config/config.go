package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains connection endpoints and credentials.
type Server struct {
	HTTPURL   string `toml:"http_url"`
	SocketURL string `toml:"socket_url"`
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`
}

// Paths contains local directory configuration.
type Paths struct {
	CacheDir      string `toml:"cache_dir"`
	MediaCacheDir string `toml:"media_cache_dir"`
	LogDir        string `toml:"log_dir"`
}

// Sync contains protocol timing, upload, and reconnect tuning.
type Sync struct {
	HandshakeTimeoutSeconds      int     `toml:"handshake_timeout_seconds"`
	ReplyTimeoutSeconds          int     `toml:"reply_timeout_seconds"`
	UploadBeginTimeoutSeconds    int     `toml:"upload_begin_timeout_seconds"`
	UploadCompleteTimeoutSeconds int     `toml:"upload_complete_timeout_seconds"`
	MaxChunkBytes                int     `toml:"max_chunk_bytes"`
	BufferedLimitBytes           int64   `toml:"buffered_limit_bytes"`
	ProgressIntervalMillis       int     `toml:"progress_interval_millis"`
	BackoffBaseMillis            int     `toml:"backoff_base_millis"`
	BackoffMaxMillis             int     `toml:"backoff_max_millis"`
	BackoffMaxAttempts           int     `toml:"backoff_max_attempts"`
	BackoffJitter                float64 `toml:"backoff_jitter"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for threadsync.
//
// Configuration sections by subsystem:
//   - Server: HTTP and socket endpoints plus bearer credential
//   - Paths: local cache and log directories
//   - Sync: protocol timeouts, upload chunking, reconnect backoff
//   - Logging: log format and level
type Config struct {
	Server  Server  `toml:"server"`
	Paths   Paths   `toml:"paths"`
	Sync    Sync    `toml:"sync"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/threadsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("threadsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required local directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.MediaCacheDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Credential returns the bearer token, preferring an inline token over a
// token file. An empty result means guest mode.
func (c *Config) Credential() (string, error) {
	if token := strings.TrimSpace(c.Server.Token); token != "" {
		return token, nil
	}
	if path := strings.TrimSpace(c.Server.TokenFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

// HandshakeTimeout returns the handshake acknowledgement deadline.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Sync.HandshakeTimeoutSeconds) * time.Second
}

// ReplyTimeout returns the default matched-reply deadline.
func (c *Config) ReplyTimeout() time.Duration {
	return time.Duration(c.Sync.ReplyTimeoutSeconds) * time.Second
}

// UploadBeginTimeout returns the UPLOAD_BEGIN acknowledgement deadline.
func (c *Config) UploadBeginTimeout() time.Duration {
	return time.Duration(c.Sync.UploadBeginTimeoutSeconds) * time.Second
}

// UploadCompleteTimeout returns the UPLOAD_END completion deadline.
func (c *Config) UploadCompleteTimeout() time.Duration {
	return time.Duration(c.Sync.UploadCompleteTimeoutSeconds) * time.Second
}

// ProgressInterval returns the minimum spacing between progress callbacks.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Sync.ProgressIntervalMillis) * time.Millisecond
}

// BackoffBase returns the first reconnect delay.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Sync.BackoffBaseMillis) * time.Millisecond
}

// BackoffMax returns the reconnect delay cap.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Sync.BackoffMaxMillis) * time.Millisecond
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
