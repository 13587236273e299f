package fuzzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioport-tools/portfuzz/ioport"
	"github.com/ioport-tools/portfuzz/pkg/portspec"
	"github.com/ioport-tools/portfuzz/pkg/rng"
)

func newTestFuzzer(t *testing.T, seed uint64) *Fuzzer {
	t.Helper()
	r := rng.NewWithState(rng.StateFromUint64(seed))
	f, err := New(r)
	require.NoError(t, err)
	return f
}

// requireDispatchSafe skips tests that would call Fuzzer.Iterate on a
// platform where ioport.Dispatch issues a real privileged instruction
// (linux/amd64, linux/386): without the iopl(2) grant pkg/harness
// acquires at process startup, the instruction raises a protection
// fault that kills the test binary outright rather than returning a Go
// error. Exercising the real dispatch path is left to an end-to-end
// run under root, matching ioport's own unit tests.
func requireDispatchSafe(t *testing.T) {
	t.Helper()
	if ioport.Supported() {
		t.Skip("dispatch requires iopl(2) privilege; exercised end-to-end, not in unit tests")
	}
}

func TestVariateInvariants(t *testing.T) {
	requireDispatchSafe(t)
	f := newTestFuzzer(t, 0x0123456789ABCDEF)
	for i := 0; i < 500; i++ {
		v := f.Variates()
		require.LessOrEqual(t, v[0], uint64(ioport.NumInstructions-1))
		require.GreaterOrEqual(t, v[3], uint64(1))
		require.LessOrEqual(t, v[3], uint64(64))
		require.LessOrEqual(t, v[4], uint64(portspec.MaxPort))
		_, err := f.Iterate()
		require.ErrorIs(t, err, ioport.ErrUnsupportedPlatform)
	}
}

func TestVariatePortRestrictedToList(t *testing.T) {
	requireDispatchSafe(t)
	list, err := portspec.Parse("0x80,0x90-0x92")
	require.NoError(t, err)
	allowed := map[uint64]bool{0x80: true, 0x90: true, 0x91: true, 0x92: true}

	f := newTestFuzzer(t, 42)
	f.SetPorts(list)
	for i := 0; i < 200; i++ {
		require.True(t, allowed[f.Variates()[4]])
		_, err := f.Iterate()
		require.ErrorIs(t, err, ioport.ErrUnsupportedPlatform)
		require.True(t, allowed[f.Variates()[4]])
	}
}

func TestVariatePortUniformWithoutList(t *testing.T) {
	requireDispatchSafe(t)
	f := newTestFuzzer(t, 7)
	for i := 0; i < 200; i++ {
		require.LessOrEqual(t, f.Variates()[4], uint64(portspec.MaxPort))
		_, err := f.Iterate()
		require.ErrorIs(t, err, ioport.ErrUnsupportedPlatform)
	}
}

func TestSuccessiveStatesDiffer(t *testing.T) {
	requireDispatchSafe(t)
	f := newTestFuzzer(t, 99)
	prev := f.State()
	distinct := 0
	for i := 0; i < 50; i++ {
		_, err := f.Iterate()
		require.ErrorIs(t, err, ioport.ErrUnsupportedPlatform)
		cur := f.State()
		if cur != prev {
			distinct++
		}
		prev = cur
	}
	require.Greater(t, distinct, 40)
}

// withCapturedDispatch replaces the package's dispatch indirection with
// a fake that records exactly the tuple it was asked to issue instead
// of touching real hardware, and restores the original on cleanup. It
// lets tests assert what Iterate/IterateWithState actually dispatched,
// not merely what Variates() rests on afterward — the two can differ
// if regeneration runs in the wrong order relative to dispatch.
func withCapturedDispatch(t *testing.T) *[]Variates {
	t.Helper()
	var calls []Variates
	orig := dispatch
	dispatch = func(v [7]uint64) (ioport.Mnemonic, uint64, error) {
		calls = append(calls, Variates(v))
		m, err := ioport.SelectorMnemonic(v[0])
		return m, 0, err
	}
	t.Cleanup(func() { dispatch = orig })
	return &calls
}

// TestReproducibilityLaw checks that a logged (state, variates) pair,
// replayed with IterateWithState on a fresh fuzzer sharing the same
// port configuration, actually reissues the logged tuple as the
// dispatched operands — not just as the resting Variates() value after
// the call returns. Slots 0-4 come from the RNG and must match the
// logged ones; slots 5 and 6 are each fuzzer's own scratch-buffer
// addresses, so the replay dispatches its own buffers there. The replay fuzzer is deliberately seeded with a
// state unrelated to loggedState, so nothing about its construction
// coincidentally pre-seeds the tuple under test.
func TestReproducibilityLaw(t *testing.T) {
	list, err := portspec.Parse("0x80")
	require.NoError(t, err)

	calls := withCapturedDispatch(t)
	f := newTestFuzzer(t, 0x0123456789ABCDEF)
	f.SetPorts(list)

	// Advance once so we have a mid-stream (state, variates) pair that
	// isn't just the construction-time tuple.
	_, err = f.Iterate()
	require.NoError(t, err)
	loggedState := f.State()
	loggedVariates := f.Variates()

	replayRNG := rng.New() // unrelated seed: zero state, not loggedState
	replay, err := New(replayRNG)
	require.NoError(t, err)
	replay.SetPorts(list)

	*calls = nil
	_, err = replay.IterateWithState(loggedState)
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	dispatched := (*calls)[0]
	require.Equal(t, loggedVariates[:5], dispatched[:5], "IterateWithState must dispatch the tuple state s reproduces, not a stale one")

	// After the call, replay has already moved on to the following
	// iteration's operands — same as any other call to Iterate — so the
	// resting tuple is a fresh one, not loggedVariates again. Its buffer
	// addresses are the ones it dispatched.
	resting := replay.Variates()
	require.NotEqual(t, loggedVariates[:5], resting[:5])
	require.Equal(t, resting[5:], dispatched[5:])
}

func TestSetPortsRegeneratesConsistently(t *testing.T) {
	f := newTestFuzzer(t, 1)
	list, err := portspec.Parse("0x70")
	require.NoError(t, err)
	f.SetPorts(list)
	require.Equal(t, uint64(0x70), f.Variates()[4])
}

func TestSetStateRegenerates(t *testing.T) {
	f := newTestFuzzer(t, 1)
	s := rng.StateFromUint64(0xDEADBEEFCAFEBABE)
	f.SetState(s)
	require.Equal(t, s, f.State())
}

func TestUnrefPanicsOnImbalance(t *testing.T) {
	f := newTestFuzzer(t, 1)
	f.Unref()
	require.Panics(t, func() { f.Unref() })
}

func TestNewRejectsNilRNG(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}
