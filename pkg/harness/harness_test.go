package harness

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ioport-tools/portfuzz/fuzzer"
	"github.com/ioport-tools/portfuzz/ioport"
)

// TestLogLineFormat pins the literal CSV shape: no spaces,
// newline-terminated, no trailing comma.
func TestLogLineFormat(t *testing.T) {
	v := fuzzer.Variates{5, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	line := formatRecord(1700000000, 1, 0x0123456789abcdef, ioport.INSW, v)

	require.True(t, strings.HasSuffix(line, "\n"))
	require.False(t, strings.Contains(strings.TrimSuffix(line, "\n"), " "))
	fields := strings.Split(strings.TrimSuffix(line, "\n"), ",")
	require.Len(t, fields, 10)
	require.Equal(t, "1700000000", fields[0])
	require.Equal(t, "1", fields[1])
	require.Equal(t, "0x0123456789abcdef", fields[2])
	require.Equal(t, "insw", fields[3])
	require.Equal(t, "0x00000011", fields[4])
	require.Equal(t, "0x00000066", fields[9])
}

func TestOpenSinkAppendsAndLocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.csv")

	s, err := OpenSink(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Lock())
	v := fuzzer.Variates{0, 1, 2, 3, 4, 5, 6}
	require.NoError(t, s.WriteRecord(time.Now().Unix(), 0, 0x1, ioport.INB, v))
	require.NoError(t, s.Unlock())

	s2, err := OpenSink(path)
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.Lock())
	require.NoError(t, s2.WriteRecord(time.Now().Unix(), 1, 0x2, ioport.OUTL, v))
	require.NoError(t, s2.Unlock())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)
}

func TestGraceCountdownQuietIsSilent(t *testing.T) {
	var buf bytes.Buffer
	GraceCountdown(&buf, true, 3*time.Second)
	require.Empty(t, buf.String())
}
