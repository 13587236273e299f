// Package fuzzer implements the variate generator (component C) and the
// Fuzzer object (component E): the engine's per-worker entity that owns
// an RNG handle, an optional port list, the reproducibility state
// snapshot, and the current 7-slot variate tuple, and exposes the
// iteration step the worker harness drives.
package fuzzer

import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ioport-tools/portfuzz/ioport"
	"github.com/ioport-tools/portfuzz/pkg/portspec"
	"github.com/ioport-tools/portfuzz/pkg/rng"
)

// dispatch is the instruction dispatcher iterateLocked issues through,
// indirected so tests can observe exactly which tuple a given call
// actually dispatches without touching real hardware.
var dispatch = ioport.Dispatch

// ErrInvalidArgument is returned by constructors and setters given a
// nil handle where one is required.
var ErrInvalidArgument = errors.New("fuzzer: invalid argument")

// bufSize is the size of the two scratch buffers backing variate slots
// 5 and 6.
const bufSize = 256

// Variates is the fixed 7-slot operand tuple consumed by the
// instruction dispatcher: selector, A, B, C, port, SI-buffer address,
// DI-buffer address.
type Variates [7]uint64

// Fuzzer is the engine's central entity, one per worker. It owns a
// shared reference to an RNG, an optional shared reference to a port
// list, the 8-byte state snapshot that reproduces the current variate
// tuple, the tuple itself, and two private scratch buffers addressed by
// variate slots 5 and 6.
type Fuzzer struct {
	mu   sync.Mutex
	refs atomic.Int32

	rnd   *rng.RNG
	ports *portspec.List

	state    rng.State
	variates Variates

	buf5, buf6 [bufSize]byte
}

// New constructs a Fuzzer sharing r, with no port list (the port slot
// is drawn uniformly over the full 16-bit space), and runs one variate
// generation step so the object is immediately iterable. r must be
// non-nil.
func New(r *rng.RNG) (*Fuzzer, error) {
	if r == nil {
		return nil, ErrInvalidArgument
	}
	f := &Fuzzer{rnd: r.Ref()}
	f.refs.Store(1)
	f.regenerateLocked()
	return f, nil
}

// NewWithState is like New, but first restores r to state, so the
// immediate variate generation step reproduces whatever tuple state
// originally preceded.
func NewWithState(r *rng.RNG, state rng.State) (*Fuzzer, error) {
	if r == nil {
		return nil, ErrInvalidArgument
	}
	r.Restore(state)
	return New(r)
}

// Ref increments the reference count and returns f.
func (f *Fuzzer) Ref() *Fuzzer {
	f.refs.Add(1)
	return f
}

// Unref decrements the reference count. At zero it releases the RNG
// and port-list references. It panics on an unbalanced Unref.
func (f *Fuzzer) Unref() {
	n := f.refs.Add(-1)
	if n < 0 {
		panic("fuzzer: Unref without matching Ref")
	}
	if n == 0 {
		f.rnd.Unref()
		if f.ports != nil {
			f.ports.Unref()
		}
	}
}

// Ports returns the currently installed port list, or nil if the port
// slot is drawn uniformly over the full address space.
func (f *Fuzzer) Ports() *portspec.List {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ports
}

// SetPorts atomically drops the old port-list reference, adopts p (if
// non-nil, taking its own reference), and re-runs the variate
// generator, so no observer ever sees a half-updated fuzzer.
func (f *Fuzzer) SetPorts(p *portspec.List) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old := f.ports
	if p != nil {
		f.ports = p.Ref()
	} else {
		f.ports = nil
	}
	f.regenerateLocked()
	if old != nil {
		old.Unref()
	}
}

// RNG returns the fuzzer's current RNG handle.
func (f *Fuzzer) RNG() *rng.RNG {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rnd
}

// SetRNG atomically drops the old RNG reference, adopts r (taking its
// own reference), and re-runs the variate generator. r must be non-nil.
func (f *Fuzzer) SetRNG(r *rng.RNG) error {
	if r == nil {
		return ErrInvalidArgument
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	old := f.rnd
	f.rnd = r.Ref()
	f.regenerateLocked()
	old.Unref()
	return nil
}

// State returns the 8-byte snapshot that reproduces the current variate
// tuple: the RNG's state immediately before the generation step that
// produced it.
func (f *Fuzzer) State() rng.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// SetState restores the RNG to s and re-runs the variate generator, so
// the fuzzer's current tuple becomes whatever tuple s originally
// preceded.
func (f *Fuzzer) SetState(s rng.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rnd.Restore(s)
	f.regenerateLocked()
}

// Variates returns a read-only snapshot of the current 7-slot tuple,
// for the harness to format into a log line.
func (f *Fuzzer) Variates() Variates {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variates
}

// Iterate dispatches the current variates, then prepares the next
// iteration's operands (and snapshots the RNG state for them). It
// returns the mnemonic that was issued.
func (f *Fuzzer) Iterate() (ioport.Mnemonic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.iterateLocked()
}

// IterateWithState restores the RNG from s and regenerates so the
// current tuple becomes the one s reproduces, then dispatches that
// tuple and regenerates again for the next iteration — it actually
// reissues the logged hardware operation rather than just landing on
// its operands as a resting field afterward. This is the mechanism
// for deterministic replay of a specific logged seed.
func (f *Fuzzer) IterateWithState(s rng.State) (ioport.Mnemonic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rnd.Restore(s)
	f.regenerateLocked()
	return f.iterateLocked()
}

func (f *Fuzzer) iterateLocked() (ioport.Mnemonic, error) {
	v := f.variates
	mnemonic, _, err := dispatch(v)
	f.regenerateLocked()
	return mnemonic, err
}

// regenerateLocked is the variate generator (component C): it snapshots
// the RNG state into f.state, then fills all seven slots in order.
// Slots 1 and 2 each independently pick one of {uniform, Fermat,
// Mersenne} via UniformRange(0,2) — uniform across the three cases, with
// no weighting toward "typical" operands. Slots 5 and 6 are refilled via
// RandomString on the fuzzer's own buffers and then rewritten to those
// buffers' own (unchanged) addresses, which is redundant but cheap and
// kept for clarity. Caller must hold f.mu.
func (f *Fuzzer) regenerateLocked() {
	f.state = f.rnd.Snapshot()
	f.variates[0] = f.rnd.UniformRange(0, uint64(ioport.NumInstructions-1))
	f.variates[1] = f.mixedOperandLocked()
	f.variates[2] = f.mixedOperandLocked()
	f.variates[3] = f.rnd.UniformRange(1, 64)
	f.variates[4] = uint64(f.ports.PickOrUniform(f.rnd))
	f.rnd.RandomString(f.buf5[:], bufSize)
	f.rnd.RandomString(f.buf6[:], bufSize)
	f.variates[5] = uint64(uintptr(unsafe.Pointer(&f.buf5[0])))
	f.variates[6] = uint64(uintptr(unsafe.Pointer(&f.buf6[0])))
}

func (f *Fuzzer) mixedOperandLocked() uint64 {
	switch f.rnd.UniformRange(0, 2) {
	case 0:
		return uint64(f.rnd.UniformU32())
	case 1:
		return f.rnd.Fermat()
	default:
		return f.rnd.Mersenne()
	}
}
