// Package session maintains the persistent socket connection to the
// sync server: dialing, the hello handshake, automatic reconnection
// with jittered backoff, and backpressure-aware sends.
package session
