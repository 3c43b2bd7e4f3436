// Package sizeof estimates the heap footprint of record object graphs.
//
// Estimates drive unroll reservations only; they are reconciled against the
// accountant when a block is promoted to storage, so approximation errors
// never corrupt the memory counters.
package sizeof
