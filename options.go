package blockstore

import (
	"github.com/hupe1980/blockstore/chunk"
	"github.com/hupe1980/blockstore/codec"
)

// Defaults for the admission knobs.
const (
	DefaultMaxOnHeapBytes         = 1 << 30 // 1 GiB
	DefaultInitialUnrollThreshold = 1 << 20 // 1 MiB
	DefaultUnrollCheckPeriod      = 16
	DefaultUnrollGrowthFactor     = 1.5
)

type options struct {
	maxOnHeapBytes  int64
	maxOffHeapBytes int64
	storageFraction float64
	unrollFraction  float64

	initialUnrollThreshold int64
	unrollCheckPeriod      int
	unrollGrowthFactor     float64
	chunkSize              int

	handler EvictionHandler
	manager *codec.Manager
	logger  *Logger
	metrics MetricsCollector
}

// Option configures Store construction.
type Option func(*options)

// WithMaxOnHeapBytes sets the on-heap pool ceiling.
func WithMaxOnHeapBytes(n int64) Option {
	return func(o *options) { o.maxOnHeapBytes = n }
}

// WithMaxOffHeapBytes sets the off-heap pool ceiling. Zero disables the
// off-heap pool entirely.
func WithMaxOffHeapBytes(n int64) Option {
	return func(o *options) { o.maxOffHeapBytes = n }
}

// WithStorageFraction sets the share of each pool initially dedicated to
// storage versus the observed execution region. Defaults to 1.0.
func WithStorageFraction(f float64) Option {
	return func(o *options) { o.storageFraction = f }
}

// WithUnrollFraction caps total unroll reservations at this share of the
// storage region. Defaults to 1.0.
func WithUnrollFraction(f float64) Option {
	return func(o *options) { o.unrollFraction = f }
}

// WithInitialUnrollThreshold sets the first unroll reservation per put.
func WithInitialUnrollThreshold(n int64) Option {
	return func(o *options) { o.initialUnrollThreshold = n }
}

// WithUnrollCheckPeriod sets the number of records between size re-estimates
// in the values unroll. The bytes unroll checks every record.
func WithUnrollCheckPeriod(n int) Option {
	return func(o *options) { o.unrollCheckPeriod = n }
}

// WithUnrollGrowthFactor sets the multiplier for successive unroll
// reservations; must be > 1.
func WithUnrollGrowthFactor(f float64) Option {
	return func(o *options) { o.unrollGrowthFactor = f }
}

// WithChunkSize sets the chunk size of serialized payload buffers.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithEvictionHandler sets the handler consulted for every displaced block.
// Without one, evicted blocks are discarded.
func WithEvictionHandler(h EvictionHandler) Option {
	return func(o *options) {
		if h != nil {
			o.handler = h
		}
	}
}

// WithSerializerManager sets the serializer and compression used by the
// bytes-variant unroll.
func WithSerializerManager(m *codec.Manager) Option {
	return func(o *options) {
		if m != nil {
			o.manager = m
		}
	}
}

// WithLogger configures structured logging for operations.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metrics = mc
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxOnHeapBytes:         DefaultMaxOnHeapBytes,
		storageFraction:        1.0,
		unrollFraction:         1.0,
		initialUnrollThreshold: DefaultInitialUnrollThreshold,
		unrollCheckPeriod:      DefaultUnrollCheckPeriod,
		unrollGrowthFactor:     DefaultUnrollGrowthFactor,
		chunkSize:              chunk.DefaultChunkSize,
		handler:                discardHandler{},
		manager:                codec.NewManager(nil, codec.CompressionNone),
		logger:                 NoopLogger(),
		metrics:                NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
