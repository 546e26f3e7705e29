// Package protocol defines the socket message envelope and the typed
// payloads exchanged with the sync server.
package protocol
