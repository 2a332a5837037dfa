// Package coordinator gates upload admission so at most a configurable
// number of transfers run concurrently overall, and per destination host.
// Slots are held for the duration of a transfer and always released, no
// matter how the transfer exits.
package coordinator
