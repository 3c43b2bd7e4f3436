// Package blockstore provides the in-memory block store of a distributed
// data-processing engine: partitioned computation results are cached in
// bounded memory, new blocks are admitted by evicting least-recently
// accessed ones, and blocks of unknown final size are materialized
// incrementally ("unrolled") against a growing memory reservation.
//
// # Memory model
//
// Two independent pools — on-heap and off-heap — each track storage credit
// (resident blocks) and unroll credit (in-flight puts). Acquisition never
// evicts on its own; the store drives eviction and retries exactly once.
// Off-heap payloads are backed by anonymous mappings and released
// explicitly on eviction, remove and clear.
//
// # Admission
//
//	st, _ := blockstore.New(blockstore.WithMaxOnHeapBytes(1 << 30))
//	defer st.Close()
//
//	id := model.NewBlockID(7, 0)
//	size, partial, err := st.PutIteratorAsValues(ctx, id, task, model.MemoryOnly, records)
//	if err != nil {
//	    var rej *blockstore.AdmissionRejectedError
//	    if errors.As(err, &rej) {
//	        // partial recovers the records that did not fit
//	        for partial.Next() { recover(partial.Value()) }
//	    }
//	}
//
// # Eviction
//
// Under pressure the store scans resident blocks least-recently accessed
// first, skipping blocks of the requesting block's own dataset (a dataset
// larger than the cache must not cycle itself out) and blocks whose read
// lock is held. Displaced blocks are offered to the configured
// EvictionHandler, which may persist them to another tier.
//
// # Locking
//
// Every block is guarded by one writer / N readers lock records with task
// affinity; ReleaseAllLocksForTask sweeps everything a finished task still
// holds. Get results keep a read lock until closed, which is what shields
// a block from concurrent eviction while it is being read.
package blockstore
