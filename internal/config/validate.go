package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.HTTPURL == "" {
		return errors.New("server.http_url must be set")
	}
	if !strings.HasPrefix(c.Server.HTTPURL, "http://") && !strings.HasPrefix(c.Server.HTTPURL, "https://") {
		return fmt.Errorf("server.http_url must be an http(s) URL, got %q", c.Server.HTTPURL)
	}
	if c.Server.SocketURL == "" {
		return errors.New("server.socket_url must be set")
	}
	if !strings.HasPrefix(c.Server.SocketURL, "ws://") && !strings.HasPrefix(c.Server.SocketURL, "wss://") {
		return fmt.Errorf("server.socket_url must be a ws(s) URL, got %q", c.Server.SocketURL)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.MaxChunkBytes < 4*1024 {
		return errors.New("sync.max_chunk_bytes must be at least 4096")
	}
	if c.Sync.BufferedLimitBytes < int64(c.Sync.MaxChunkBytes) {
		return errors.New("sync.buffered_limit_bytes must be at least sync.max_chunk_bytes")
	}
	if c.Sync.BackoffMaxMillis < c.Sync.BackoffBaseMillis {
		return errors.New("sync.backoff_max_millis must be at least sync.backoff_base_millis")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
