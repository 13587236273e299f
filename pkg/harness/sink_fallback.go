//go:build !(freebsd || netbsd || openbsd || linux || darwin)

package harness

import "sync"

// lock/unlock fall back to an in-process mutex on platforms without an
// advisory file lock wired up here. This only serializes workers within
// one process, not across processes sharing the same output file — an
// acceptable gap since the rest of this engine (the dispatcher) is
// linux/x86-only anyway; see ioport.ErrUnsupportedPlatform.
var fallbackMu sync.Mutex

func (s *Sink) lock() error {
	fallbackMu.Lock()
	return nil
}

func (s *Sink) unlock() error {
	fallbackMu.Unlock()
	return nil
}
