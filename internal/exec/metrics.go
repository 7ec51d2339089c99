package exec

import "sync/atomic"

// Metrics exposes the few scheduler counters worth observing from outside
// the executor -- plain atomics rather than a tracing/metrics SDK, per
// SPEC_FULL.md's note that a single-image kernel's causality is already
// reconstructable from structured logs (see DESIGN.md's dropped-otel
// entry).
type Metrics struct {
	Polled     atomic.Uint64
	Stolen     atomic.Uint64
	Overflowed atomic.Uint64
	Preempted  atomic.Uint64
}
