package blockstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordPut is called after each put operation (any variant).
	// size is the stored size in bytes (0 on failure), err is nil if successful.
	RecordPut(size int64, duration time.Duration, err error)

	// RecordGet is called after each get operation.
	RecordGet(hit bool, duration time.Duration)

	// RecordEviction is called after each eviction pass that dropped blocks.
	RecordEviction(blocks int, freedBytes int64)

	// RecordRemove is called after each explicit remove.
	RecordRemove(found bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordGet(bool, time.Duration)         {}
func (NoopMetricsCollector) RecordEviction(int, int64)             {}
func (NoopMetricsCollector) RecordRemove(bool)                     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PutCount       atomic.Int64
	PutErrors      atomic.Int64
	PutBytes       atomic.Int64
	PutTotalNanos  atomic.Int64
	GetCount       atomic.Int64
	GetHits        atomic.Int64
	GetTotalNanos  atomic.Int64
	EvictionPasses atomic.Int64
	EvictedBlocks  atomic.Int64
	EvictedBytes   atomic.Int64
	RemoveCount    atomic.Int64
	RemoveMisses   atomic.Int64
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(size int64, duration time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PutErrors.Add(1)
	} else {
		b.PutBytes.Add(size)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(hit bool, duration time.Duration) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.GetHits.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(blocks int, freedBytes int64) {
	b.EvictionPasses.Add(1)
	b.EvictedBlocks.Add(int64(blocks))
	b.EvictedBytes.Add(freedBytes)
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(found bool) {
	b.RemoveCount.Add(1)
	if !found {
		b.RemoveMisses.Add(1)
	}
}

// Stats is a snapshot of BasicMetricsCollector state.
type Stats struct {
	PutCount       int64
	PutErrors      int64
	PutBytes       int64
	PutAvgNanos    int64
	GetCount       int64
	GetHits        int64
	GetAvgNanos    int64
	EvictionPasses int64
	EvictedBlocks  int64
	EvictedBytes   int64
	RemoveCount    int64
	RemoveMisses   int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() Stats {
	s := Stats{
		PutCount:       b.PutCount.Load(),
		PutErrors:      b.PutErrors.Load(),
		PutBytes:       b.PutBytes.Load(),
		GetCount:       b.GetCount.Load(),
		GetHits:        b.GetHits.Load(),
		EvictionPasses: b.EvictionPasses.Load(),
		EvictedBlocks:  b.EvictedBlocks.Load(),
		EvictedBytes:   b.EvictedBytes.Load(),
		RemoveCount:    b.RemoveCount.Load(),
		RemoveMisses:   b.RemoveMisses.Load(),
	}
	if s.PutCount > 0 {
		s.PutAvgNanos = b.PutTotalNanos.Load() / s.PutCount
	}
	if s.GetCount > 0 {
		s.GetAvgNanos = b.GetTotalNanos.Load() / s.GetCount
	}
	return s
}
