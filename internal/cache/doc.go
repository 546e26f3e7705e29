// Package cache persists synchronized thread state and downloaded
// media blobs on disk, keyed by owner scope so guest and signed-in
// sessions never bleed into each other.
package cache
