// Package metrics provides a trimmed, prometheus/streamz-style registry
// for instrumenting portfuzz, adapted from the teacher's pkg/stat
// package (stat.Val / stat.New) down to the three counters this engine
// actually needs: total iterations, per-mnemonic counts, and an
// iteration-latency distribution.
package metrics

import (
	"sync"
	"time"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ioport-tools/portfuzz/ioport"
)

const histogramBuckets = 64

// Registry holds every counter for one process. Unlike the teacher's
// global stat.Val registry, this one is an explicit value so tests
// don't fight over shared global state.
type Registry struct {
	mu sync.Mutex

	total     uint64
	byMnemoic map[ioport.Mnemonic]uint64
	latency   *gohistogram.NumericHistogram

	totalVec *prometheus.CounterVec
	latVec   prometheus.Histogram
}

// New builds a Registry and, if reg is non-nil, registers its counters
// with reg (ordinarily prometheus.DefaultRegisterer), mirroring the
// teacher's Prometheus wiring in pkg/stat and syz-manager/http.go.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		byMnemoic: make(map[ioport.Mnemonic]uint64, ioport.NumInstructions),
		latency:   gohistogram.NewHistogram(histogramBuckets),
		totalVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfuzz_iterations_total",
			Help: "Total fuzzing iterations, by instruction mnemonic.",
		}, []string{"mnemonic"}),
		latVec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "portfuzz_iteration_latency_seconds",
			Help: "Per-iteration latency: lock acquisition through dispatch return.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.totalVec, r.latVec)
	}
	return r
}

// Observe records one completed iteration: its mnemonic and the
// wall-clock time the iteration took (lock acquisition through
// dispatch return).
func (r *Registry) Observe(m ioport.Mnemonic, d time.Duration) {
	r.mu.Lock()
	r.total++
	r.byMnemoic[m]++
	r.latency.Add(d.Seconds())
	r.mu.Unlock()

	r.totalVec.WithLabelValues(string(m)).Inc()
	r.latVec.Observe(d.Seconds())
}

// Total returns the total number of recorded iterations.
func (r *Registry) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// ByMnemonic returns a copy of the per-mnemonic iteration counts.
func (r *Registry) ByMnemonic() map[ioport.Mnemonic]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[ioport.Mnemonic]uint64, len(r.byMnemoic))
	for k, v := range r.byMnemoic {
		out[k] = v
	}
	return out
}

// LatencyQuantile returns the estimated q-quantile (0 <= q <= 1) of
// recorded iteration latencies in seconds.
func (r *Registry) LatencyQuantile(q float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latency.Quantile(q)
}
