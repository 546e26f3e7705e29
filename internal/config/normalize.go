package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeServer(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeServer() error {
	c.Server.HTTPURL = strings.TrimRight(strings.TrimSpace(c.Server.HTTPURL), "/")
	c.Server.SocketURL = strings.TrimRight(strings.TrimSpace(c.Server.SocketURL), "/")
	c.Server.Token = strings.TrimSpace(c.Server.Token)
	if env, ok := os.LookupEnv("THREADSYNC_TOKEN"); ok && strings.TrimSpace(env) != "" {
		c.Server.Token = strings.TrimSpace(env)
	}
	if c.Server.TokenFile != "" {
		expanded, err := expandPath(c.Server.TokenFile)
		if err != nil {
			return fmt.Errorf("server.token_file: %w", err)
		}
		c.Server.TokenFile = expanded
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MediaCacheDir) == "" {
		c.Paths.MediaCacheDir = defaultMediaCacheDir
	}
	if c.Paths.MediaCacheDir, err = expandPath(c.Paths.MediaCacheDir); err != nil {
		return fmt.Errorf("paths.media_cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSync() {
	if c.Sync.HandshakeTimeoutSeconds <= 0 {
		c.Sync.HandshakeTimeoutSeconds = defaultHandshakeTimeoutSeconds
	}
	if c.Sync.ReplyTimeoutSeconds <= 0 {
		c.Sync.ReplyTimeoutSeconds = defaultReplyTimeoutSeconds
	}
	if c.Sync.UploadBeginTimeoutSeconds <= 0 {
		c.Sync.UploadBeginTimeoutSeconds = defaultUploadBeginTimeoutSecs
	}
	if c.Sync.UploadCompleteTimeoutSeconds <= 0 {
		c.Sync.UploadCompleteTimeoutSeconds = defaultUploadCompleteTimeoutSecs
	}
	if c.Sync.MaxChunkBytes <= 0 {
		c.Sync.MaxChunkBytes = defaultMaxChunkBytes
	}
	if c.Sync.BufferedLimitBytes <= 0 {
		c.Sync.BufferedLimitBytes = defaultBufferedLimitBytes
	}
	if c.Sync.ProgressIntervalMillis <= 0 {
		c.Sync.ProgressIntervalMillis = defaultProgressIntervalMillis
	}
	if c.Sync.BackoffBaseMillis <= 0 {
		c.Sync.BackoffBaseMillis = defaultBackoffBaseMillis
	}
	if c.Sync.BackoffMaxMillis <= 0 {
		c.Sync.BackoffMaxMillis = defaultBackoffMaxMillis
	}
	if c.Sync.BackoffMaxAttempts <= 0 {
		c.Sync.BackoffMaxAttempts = defaultBackoffMaxAttempts
	}
	if c.Sync.BackoffJitter < 0 || c.Sync.BackoffJitter >= 1 {
		c.Sync.BackoffJitter = defaultBackoffJitter
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
