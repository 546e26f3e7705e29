// Package threads holds the client's view of threads and chat items
// and the reconciliation rules that merge locally staged state with
// authoritative server snapshots and incremental push patches.
package threads
