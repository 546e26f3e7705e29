// Package upload streams media to the sync server over the socket in
// bounded base64 chunks, with backpressure, integrity checksums, and
// throttled progress reporting.
package upload
