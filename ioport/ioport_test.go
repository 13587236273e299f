package ioport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMnemonicIndex(t *testing.T) {
	for i, m := range mnemonics {
		require.Equal(t, i, MnemonicIndex(m))
	}
	require.Equal(t, -1, MnemonicIndex(Mnemonic("bogus")))
}

func TestDispatchRejectsOutOfRangeSelector(t *testing.T) {
	_, _, err := Dispatch([7]uint64{12, 0, 0, 1, 0, 0, 0})
	require.Error(t, err)
}

// TestDispatchUnsupportedPlatform exercises the platform-gated error path.
// It only asserts anything on GOOS/GOARCH combinations other than
// linux/amd64 and linux/386: on those two, Dispatch actually issues a
// privileged instruction and requires the iopl(2) grant pkg/harness
// acquires at process startup, which this unit test does not hold —
// exercising the real dispatch path is left to an end-to-end run under
// root.
func TestDispatchUnsupportedPlatform(t *testing.T) {
	if supported {
		t.Skip("dispatch requires iopl(2) privilege; exercised end-to-end, not in unit tests")
	}
	for sel := uint64(0); sel < NumInstructions; sel++ {
		m, _, err := Dispatch([7]uint64{sel, 1, 2, 3, 4, 5, 6})
		require.True(t, errors.Is(err, ErrUnsupportedPlatform))
		require.Equal(t, mnemonics[sel], m)
	}
}
