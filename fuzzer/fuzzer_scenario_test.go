package fuzzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioport-tools/portfuzz/ioport"
	"github.com/ioport-tools/portfuzz/pkg/portspec"
)

// TestInstructionCoverage checks that, over a long enough run, all
// twelve mnemonics appear at least once.
func TestInstructionCoverage(t *testing.T) {
	requireDispatchSafe(t)
	f := newTestFuzzer(t, 0xC0FFEE)
	seen := make(map[uint64]bool)
	for i := 0; i < 2000; i++ {
		v := f.Variates()
		seen[v[0]] = true
		_, err := f.Iterate()
		require.ErrorIs(t, err, ioport.ErrUnsupportedPlatform)
	}
	require.Len(t, seen, ioport.NumInstructions)
}

// TestPortClampingFullRangeIsUniform checks that "--ports 0-0x20000"
// expands internally to the full 16-bit space, and that over many
// draws slot 4 covers that space roughly evenly. This checks coverage
// breadth rather than a strict chi-square bound, to keep the test both
// fast and not flaky.
func TestPortClampingFullRangeIsUniform(t *testing.T) {
	requireDispatchSafe(t)
	list, err := portspec.Parse("0-0x20000")
	require.NoError(t, err)
	require.Equal(t, 0x10000, list.Len())

	const buckets = 16
	const bucketSize = 0x10000 / buckets
	counts := make([]int, buckets)

	f := newTestFuzzer(t, 777)
	f.SetPorts(list)
	const iterations = 8000
	for i := 0; i < iterations; i++ {
		p := f.Variates()[4]
		counts[p/bucketSize]++
		_, err := f.Iterate()
		require.ErrorIs(t, err, ioport.ErrUnsupportedPlatform)
	}

	expected := float64(iterations) / float64(buckets)
	for _, c := range counts {
		require.Greater(t, float64(c), expected*0.5)
		require.Less(t, float64(c), expected*1.5)
	}
}

// TestTwoFuzzersSharingRNGBothRemainIndividuallyReproducible is
// scenario 4's reproducibility half: each fuzzer's own logged state
// still reproduces its own tuple even though a shared RNG interleaves
// draws between them nondeterministically. It checks the tuple actually
// dispatched during replay, not merely the resting Variates() value
// afterward, since the two differ once IterateWithState regenerates a
// further tuple after dispatching the one s reproduces. Slots 0-4 are
// compared; slots 5 and 6 are each fuzzer's own buffer addresses.
func TestTwoFuzzersSharingRNGBothRemainIndividuallyReproducible(t *testing.T) {
	calls := withCapturedDispatch(t)
	r := newTestFuzzer(t, 55).RNG()

	a, err := New(r)
	require.NoError(t, err)
	b, err := New(r)
	require.NoError(t, err)

	_, err = a.Iterate()
	require.NoError(t, err)
	aState, aVariates := a.State(), a.Variates()

	_, err = b.Iterate()
	require.NoError(t, err)

	replay, err := New(r)
	require.NoError(t, err)

	*calls = nil
	_, err = replay.IterateWithState(aState)
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	dispatched := (*calls)[0]
	require.Equal(t, aVariates[:5], dispatched[:5])
	resting := replay.Variates()
	require.NotEqual(t, aVariates[:5], resting[:5])
	require.Equal(t, resting[5:], dispatched[5:])
}
