// Package prom exports the feed cache's Metrics signals as Prometheus
// counters and gauges.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/feedcache/feed"
)

// Adapter implements feed.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	prefetches prometheus.Counter
	evicts     prometheus.Counter
	cacheEnt   prometheus.Gauge
	bufferEnt  prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Deliveries served from the lookahead buffer or item store",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Deliveries that needed an emergency fetch",
			ConstLabels: constLabels,
		}),
		prefetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "prefetches_total",
			Help:        "Items resolved speculatively ahead of the buffer",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "Entries dropped by the retention policy",
			ConstLabels: constLabels,
		}),
		cacheEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "cache_entries",
			Help:        "Resident entries in the item store",
			ConstLabels: constLabels,
		}),
		bufferEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "buffer_entries",
			Help:        "Ready-to-deliver entries in the lookahead buffer",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.prefetches, a.evicts, a.cacheEnt, a.bufferEnt)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Prefetch increments the speculative prefetch counter.
func (a *Adapter) Prefetch() { a.prefetches.Inc() }

// Evict increments the eviction counter.
func (a *Adapter) Evict() { a.evicts.Inc() }

// Size updates the store and buffer occupancy gauges.
func (a *Adapter) Size(cacheEntries, bufferEntries int) {
	a.cacheEnt.Set(float64(cacheEntries))
	a.bufferEnt.Set(float64(bufferEntries))
}

// Compile-time check: ensure Adapter implements feed.Metrics.
var _ feed.Metrics = (*Adapter)(nil)
