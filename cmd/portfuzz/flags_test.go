package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	o := parseFlags(nil)
	require.Equal(t, 1, o.numThreads)
	require.False(t, o.quiet)
	require.Equal(t, "", o.output)
}

func TestParseFlagsOverrides(t *testing.T) {
	o := parseFlags([]string{
		"--num-threads", "4",
		"--ports", "0x80,0x90-0x92",
		"--quiet",
		"--state", "0x0123456789ABCDEF",
	})
	require.Equal(t, 4, o.numThreads)
	require.Equal(t, "0x80,0x90-0x92", o.portsSpec)
	require.True(t, o.quiet)
	require.Equal(t, uint64(0x0123456789ABCDEF), o.state)
}

func TestResolvePortSpecExpandsRanges(t *testing.T) {
	list := resolvePortSpec("0x70,0x80-0x82")
	require.Equal(t, 4, list.Len())
}

func TestInitialRNGMatchesStateField(t *testing.T) {
	r := initialRNG(0x0123456789ABCDEF)
	require.Equal(t, uint64(0x0123456789ABCDEF), r.Snapshot().Uint64())
}
