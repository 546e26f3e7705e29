package config

const (
	defaultHTTPURL                   = "https://api.happysrt.app"
	defaultSocketURL                 = "wss://api.happysrt.app/sync"
	defaultCacheDir                  = "~/.local/share/threadsync/cache"
	defaultMediaCacheDir             = "~/.local/share/threadsync/media"
	defaultLogDir                    = "~/.local/share/threadsync/logs"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultHandshakeTimeoutSeconds   = 10
	defaultReplyTimeoutSeconds       = 15
	defaultUploadBeginTimeoutSecs    = 20
	defaultUploadCompleteTimeoutSecs = 120
	defaultMaxChunkBytes             = 256 * 1024
	defaultBufferedLimitBytes        = 1 << 20
	defaultProgressIntervalMillis    = 200
	defaultBackoffBaseMillis         = 500
	defaultBackoffMaxMillis          = 30_000
	defaultBackoffMaxAttempts        = 8
	defaultBackoffJitter             = 0.2
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			HTTPURL:   defaultHTTPURL,
			SocketURL: defaultSocketURL,
		},
		Paths: Paths{
			CacheDir:      defaultCacheDir,
			MediaCacheDir: defaultMediaCacheDir,
			LogDir:        defaultLogDir,
		},
		Sync: Sync{
			HandshakeTimeoutSeconds:      defaultHandshakeTimeoutSeconds,
			ReplyTimeoutSeconds:          defaultReplyTimeoutSeconds,
			UploadBeginTimeoutSeconds:    defaultUploadBeginTimeoutSecs,
			UploadCompleteTimeoutSeconds: defaultUploadCompleteTimeoutSecs,
			MaxChunkBytes:                defaultMaxChunkBytes,
			BufferedLimitBytes:           defaultBufferedLimitBytes,
			ProgressIntervalMillis:       defaultProgressIntervalMillis,
			BackoffBaseMillis:            defaultBackoffBaseMillis,
			BackoffMaxMillis:             defaultBackoffMaxMillis,
			BackoffMaxAttempts:           defaultBackoffMaxAttempts,
			BackoffJitter:                defaultBackoffJitter,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
