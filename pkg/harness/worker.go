// Package harness implements the worker harness: privilege
// acquisition, the grace banner, the shared log sink, and the
// goroutine-per-worker spawn loop that drives fuzzer.Fuzzer.Iterate.
package harness

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ioport-tools/portfuzz/fuzzer"
	"github.com/ioport-tools/portfuzz/ioport"
	"github.com/ioport-tools/portfuzz/pkg/log"
	"github.com/ioport-tools/portfuzz/pkg/portspec"
	"github.com/ioport-tools/portfuzz/pkg/rng"
)

// Config carries the parameters the worker harness needs, gathered from
// the command line by cmd/portfuzz/flags.go.
type Config struct {
	NumThreads int
	Ports      *portspec.List
	Sink       *Sink
	OnIterate  func(worker int, mnemonic ioport.Mnemonic, latency time.Duration) // optional, for metrics
}

// Run shares r as the one process-wide RNG of every worker, spawns NumThreads-1
// detached worker goroutines, and runs worker 0 in the calling
// goroutine — a direct generalization of the teacher's
// startProc/proc.loop() goroutine-per-worker pattern, substituting a
// detached goroutine for the teacher's detached OS thread since Go's
// scheduler already multiplexes goroutines onto OS threads across
// blocking syscalls. It never returns in normal operation: each
// worker's loop runs forever, terminating only via an external signal.
func Run(cfg Config, r *rng.RNG) error {
	if cfg.NumThreads < 1 {
		return fmt.Errorf("harness: NumThreads must be >= 1, got %d", cfg.NumThreads)
	}
	var wg sync.WaitGroup
	for ordinal := 1; ordinal < cfg.NumThreads; ordinal++ {
		wg.Add(1)
		go func(ordinal int) {
			defer wg.Done()
			if err := runWorker(cfg, r, ordinal); err != nil {
				log.Logf(0, "worker %d exiting: %v", ordinal, err)
			}
		}(ordinal)
	}
	err := runWorker(cfg, r, 0)
	if err != nil {
		log.Logf(0, "worker %d exiting: %v", 0, err)
	}
	wg.Wait()
	return err
}

// runWorker is the per-worker loop: construct a private Fuzzer sharing
// the process-wide RNG and port list, then forever lock the sink, emit
// and flush/fsync one CSV line, iterate the fuzzer, unlock.
func runWorker(cfg Config, r *rng.RNG, ordinal int) error {
	fz, err := fuzzer.New(r)
	if err != nil {
		return fmt.Errorf("construct fuzzer: %w", err)
	}
	defer fz.Unref()
	if cfg.Ports != nil {
		fz.SetPorts(cfg.Ports)
	}

	for {
		if err := iterateOnce(cfg, fz, ordinal); err != nil {
			return err
		}
	}
}

func iterateOnce(cfg Config, fz *fuzzer.Fuzzer, ordinal int) error {
	start := time.Now()
	v := fz.Variates()
	state := fz.State()
	mnemonic, err := ioport.SelectorMnemonic(v[0])
	if err != nil {
		return fmt.Errorf("selector: %w", err)
	}

	if err := cfg.Sink.Lock(); err != nil {
		return fmt.Errorf("lock sink: %w", err)
	}
	writeErr := cfg.Sink.WriteRecord(time.Now().Unix(), ordinal, state.Uint64(), mnemonic, v)
	if writeErr == nil {
		_, dispatchErr := fz.Iterate()
		if dispatchErr != nil && !errors.Is(dispatchErr, ioport.ErrUnsupportedPlatform) {
			writeErr = fmt.Errorf("dispatch: %w", dispatchErr)
		}
	}
	if unlockErr := cfg.Sink.Unlock(); unlockErr != nil && writeErr == nil {
		writeErr = fmt.Errorf("unlock sink: %w", unlockErr)
	}
	if writeErr != nil {
		return writeErr
	}
	if cfg.OnIterate != nil {
		cfg.OnIterate(ordinal, mnemonic, time.Since(start))
	}
	return nil
}
