// Package logging constructs slog loggers for the sync client and
// provides attribute helpers plus a progress sampler that keeps
// high-frequency progress events out of the logs.
package logging
