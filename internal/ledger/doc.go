// Package ledger tracks speculative token holds placed against the
// user's balance before the server confirms actual cost. It is the
// single point of truth for which estimates are already reserved.
package ledger
