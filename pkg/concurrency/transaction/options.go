package transaction

import "txkernel/pkg/metrics"

type options struct {
	cacheSize int64
	metrics   *metrics.Metrics
}

// Option configures a Ledger at Create or Open time.
type Option func(*options)

// WithStatusCache sets how many terminal statuses are cached. Zero disables
// the cache.
func WithStatusCache(size int64) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// WithMetrics reports begins, commits, aborts and sync latency to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	o := options{cacheSize: DefaultStatusCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
