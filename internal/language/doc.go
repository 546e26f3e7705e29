// Package language provides unified language code normalization.
//
// Every per-language map in the client (translate status, translation
// results, live stream buffers, reservation key suffixes) is keyed
// through Normalize so that differing spellings of the same language
// tag always collide to a single canonical key.
package language
