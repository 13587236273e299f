package portspec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioport-tools/portfuzz/pkg/rng"
)

func TestParseRangesAndSingles(t *testing.T) {
	l, err := Parse("0x70,0x80-0x82,0x90")
	require.NoError(t, err)
	require.Equal(t, 5, l.Len())
	got := make([]uint16, l.Len())
	for i := range got {
		got[i] = l.At(i)
	}
	require.Equal(t, []uint16{0x70, 0x80, 0x81, 0x82, 0x90}, got)
}

func TestParseClampsHighEnd(t *testing.T) {
	l, err := Parse("0xFFFE-0x1FFFF")
	require.NoError(t, err)
	got := make([]uint16, l.Len())
	for i := range got {
		got[i] = l.At(i)
	}
	require.Equal(t, []uint16{0xFFFE, 0xFFFF}, got)
}

func TestParseEmptySpec(t *testing.T) {
	l, err := Parse("")
	require.NoError(t, err)
	require.Equal(t, 0, l.Len())
}

func TestParseRejectsReversedRange(t *testing.T) {
	_, err := Parse("0x90-0x80")
	require.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-port")
	require.Error(t, err)
}

func TestPickOrUniformEmptyListIsFullRange(t *testing.T) {
	l, err := Parse("")
	require.NoError(t, err)
	r := rng.New()
	for i := 0; i < 500; i++ {
		v := l.PickOrUniform(r)
		require.LessOrEqual(t, v, uint16(MaxPort))
	}
}

func TestPickOrUniformNilListIsFullRange(t *testing.T) {
	r := rng.New()
	var l *List
	for i := 0; i < 500; i++ {
		v := l.PickOrUniform(r)
		require.LessOrEqual(t, v, uint16(MaxPort))
	}
}

func TestPickOrUniformRestrictsToList(t *testing.T) {
	l, err := Parse("0x80,0x90")
	require.NoError(t, err)
	r := rng.New()
	allowed := map[uint16]bool{0x80: true, 0x90: true}
	for i := 0; i < 200; i++ {
		require.True(t, allowed[l.PickOrUniform(r)])
	}
}
