// Package faults defines the shared error taxonomy for the sync client.
//
// Errors are tagged with one of four sentinel markers so that callers
// can decide between reconnecting (transport), failing the operation
// (protocol), surfacing the failure verbatim to the user (resource),
// or rejecting the call before it reaches the wire (application).
package faults
