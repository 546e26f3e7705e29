// Package engine is the reconciliation core: it consumes inbound
// socket events, applies the merge rules to the thread store, keeps
// the reservation ledger honest, and persists the merged state.
package engine
