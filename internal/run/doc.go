// Package run submits processing work: validating preconditions
// locally, placing optimistic token reservations, and sending the run
// and retry frames.
package run
