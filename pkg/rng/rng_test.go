package rng

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	r := NewWithState(StateFromUint64(0x0123456789ABCDEF))
	r.UniformU32()
	r.UniformU32()
	snap := r.Snapshot()

	want := make([]uint32, 10)
	for i := range want {
		want[i] = r.UniformU32()
	}

	r.Restore(snap)
	got := make([]uint32, 10)
	for i := range got {
		got[i] = r.UniformU32()
	}
	require.Equal(t, want, got)
}

func TestUniformRangeDegenerate(t *testing.T) {
	r := New()
	for k := uint64(0); k < 20; k++ {
		require.Equal(t, k, r.UniformRange(k, k))
	}
}

func TestUniformRangeWithinBounds(t *testing.T) {
	r := New()
	for i := 0; i < 1000; i++ {
		v := r.UniformRange(5, 9)
		require.GreaterOrEqual(t, v, uint64(5))
		require.LessOrEqual(t, v, uint64(9))
	}
}

func TestFermatShape(t *testing.T) {
	r := New()
	for i := 0; i < 200; i++ {
		v := r.Fermat()
		k := v - 1
		require.Equal(t, uint64(0), k&(k-1), "2^k+1 minus 1 must be a power of two: k=%d", k)
	}
}

func TestMersenneShape(t *testing.T) {
	r := New()
	for i := 0; i < 200; i++ {
		v := r.Mersenne()
		require.Equal(t, uint64(0), (v+1)&v, "2^k-1 plus 1 must be a power of two")
	}
}

func TestRandomStringTermination(t *testing.T) {
	r := New()

	buf1 := make([]byte, 1)
	r.RandomString(buf1, 1)

	buf2 := make([]byte, 2)
	r.RandomString(buf2, 2)
	require.Equal(t, byte(0), buf2[0])

	n := 256
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 0xFF
	}
	r.RandomString(buf, n)
	require.Equal(t, byte(0), buf[n-2])
	for i := 0; i < n-2; i++ {
		require.GreaterOrEqual(t, buf[i], byte(' '))
		require.LessOrEqual(t, buf[i], byte('~'))
	}
}

func TestUint64RoundTrip(t *testing.T) {
	want := uint64(0xDEADBEEFCAFEBABE)
	s := StateFromUint64(want)
	require.Equal(t, want, s.Uint64())
}
