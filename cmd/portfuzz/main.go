// Command portfuzz is a hardware I/O port fuzzer for x86 platforms: it
// repeatedly executes the twelve x86 port-I/O instructions against a
// configurable set of port addresses with pseudo-random operand
// values, logging each invocation together with the deterministic RNG
// state that produced it so a crash or hang can be bisected by replay.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ioport-tools/portfuzz/ioport"
	"github.com/ioport-tools/portfuzz/pkg/harness"
	"github.com/ioport-tools/portfuzz/pkg/log"
	"github.com/ioport-tools/portfuzz/pkg/metrics"
	"github.com/ioport-tools/portfuzz/pkg/tool"
)

func main() {
	o := parseFlags(os.Args[1:])
	applyVerbosity(o)
	applyStackSize(o.stackSize)

	runID := uuid.New()
	log.Logf(1, "%s run %s starting", name, runID)

	if err := harness.AcquirePrivilege(); err != nil {
		tool.Failf("privilege acquisition failed: %v", err)
	}

	harness.GraceCountdown(os.Stderr, o.quiet, graceDuration)

	ports := resolvePortSpec(o.portsSpec)
	r := initialRNG(o.state)

	sink, err := harness.OpenSink(o.output)
	if err != nil {
		tool.Failf("%v", err)
	}
	defer sink.Close()

	reg := metrics.New(prometheus.DefaultRegisterer)
	if o.metricsAddr != "" {
		go serveMetrics(o.metricsAddr)
	}

	cfg := harness.Config{
		NumThreads: o.numThreads,
		Ports:      ports,
		Sink:       sink,
		OnIterate: func(worker int, m ioport.Mnemonic, latency time.Duration) {
			reg.Observe(m, latency)
			log.Logf(3, "worker %d issued %s in %s", worker, m, latency)
		},
	}

	if err := harness.Run(cfg, r); err != nil {
		tool.Failf("worker harness exited: %v", err)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Logf(0, "metrics server stopped: %v", err)
	}
}
