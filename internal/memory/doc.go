// Package memory implements the two-pool byte accountant behind the block
// store. Each memory mode (on-heap, off-heap) has an independent pool split
// into storage and unroll credit plus an observed execution share. Acquisition
// never evicts; the store drives eviction and retries.
package memory
