// Package api is the HTTP client for the signed-in sync endpoints:
// thread index deltas, thread CRUD, and draft management that falls
// outside the socket protocol.
package api
