// Package spill provides EvictionHandler implementations: a handler that
// discards displaced blocks, and a local-disk tier with throughput limiting
// and bounded concurrency. Object-store tiers live in the spill/minio and
// spill/s3 subpackages.
//
// A handler only persists blocks whose StorageLevel allows the disk tier;
// everything else is dropped and reported as no longer findable.
package spill
