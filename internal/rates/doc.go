// Package rates estimates token costs for operations before the server
// confirms the real charge. The tables are deliberately simple lookup
// data: estimates only need to land close to the confirmed cost, never
// equal to it.
package rates
