package harness

import (
	"fmt"
	"io"
	"os"

	"github.com/ioport-tools/portfuzz/fuzzer"
	"github.com/ioport-tools/portfuzz/ioport"
)

// Sink is the shared CSV log sink: a single underlying file (or
// stdout) that every worker serializes access to with a
// file-granularity lock, so the CSV stream is line-atomic across
// workers and across the kernel's page cache.
type Sink struct {
	f        *os.File
	isStdout bool
}

// OpenSink opens the shared log sink: stdout if path is empty, or the
// named file opened for append (creating it if necessary) otherwise.
func OpenSink(path string) (*Sink, error) {
	if path == "" {
		return &Sink{f: os.Stdout, isStdout: true}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("harness: open log sink: %w", err)
	}
	return &Sink{f: f}, nil
}

// Close releases the underlying file. It is a no-op for stdout.
func (s *Sink) Close() error {
	if s.isStdout {
		return nil
	}
	return s.f.Close()
}

// WriteRecord formats and writes one CSV line, then flushes and fsyncs
// it — all before the caller is expected to dispatch the corresponding
// instruction, so a crashing instruction still leaves a reproducible
// last-known-good seed on disk. The lock itself is held across the
// write+flush+fsync and released by the caller only after the
// instruction has been dispatched, to preserve that ordering across
// workers sharing one sink; see pkg/harness's worker loop.
func (s *Sink) WriteRecord(unixSeconds int64, ordinal int, state uint64, mnemonic ioport.Mnemonic, v fuzzer.Variates) error {
	line := formatRecord(unixSeconds, ordinal, state, mnemonic, v)
	if _, err := io.WriteString(s.f, line); err != nil {
		return fmt.Errorf("harness: write log line: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("harness: fsync log line: %w", err)
	}
	return nil
}

// formatRecord renders the log line: unix seconds, worker ordinal, the
// 8-byte state snapshot reinterpreted as a little-endian uint64 and
// printed 0x-hex, the lowercase mnemonic, then v1..v6 each printed as
// 0x-hex — truncated to 32 bits even on 64-bit hosts, which is the
// wire format and not a bug to widen.
func formatRecord(unixSeconds int64, ordinal int, state uint64, mnemonic ioport.Mnemonic, v fuzzer.Variates) string {
	return fmt.Sprintf("%d,%d,0x%016x,%s,0x%08x,0x%08x,0x%08x,0x%08x,0x%08x,0x%08x\n",
		unixSeconds, ordinal, state, mnemonic,
		uint32(v[1]), uint32(v[2]), uint32(v[3]), uint32(v[4]), uint32(v[5]), uint32(v[6]))
}

// Lock and Unlock expose the sink's file-granularity advisory lock
// directly, so the worker loop can hold it across write+flush+fsync
// *and* the subsequent instruction dispatch. Lock ordering across the
// engine is always sink lock -> fuzzer mutex -> RNG mutex.
func (s *Sink) Lock() error   { return s.lock() }
func (s *Sink) Unlock() error { return s.unlock() }
