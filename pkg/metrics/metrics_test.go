package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ioport-tools/portfuzz/ioport"
)

func TestObserveTracksTotalsAndPerMnemonic(t *testing.T) {
	r := New(nil)
	r.Observe(ioport.INB, time.Microsecond)
	r.Observe(ioport.INB, time.Microsecond)
	r.Observe(ioport.OUTL, 2*time.Microsecond)

	require.EqualValues(t, 3, r.Total())
	counts := r.ByMnemonic()
	require.EqualValues(t, 2, counts[ioport.INB])
	require.EqualValues(t, 1, counts[ioport.OUTL])
}

func TestLatencyQuantileIsWithinObservedRange(t *testing.T) {
	r := New(nil)
	for i := 0; i < 100; i++ {
		r.Observe(ioport.INB, time.Duration(i+1)*time.Millisecond)
	}
	q := r.LatencyQuantile(0.5)
	require.Greater(t, q, 0.0)
	require.Less(t, q, 0.2)
}
