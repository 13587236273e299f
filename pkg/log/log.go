// Package log provides logging for portfuzz similar to the standard log
// package with some extensions:
//   - verbosity levels, raised by -v/-d on the command line
//   - a global verbosity setting shared by every package
//   - the ability to disable all output
//   - the ability to cache recent output in memory for diagnostics
package log

import (
	"bytes"
	"fmt"
	golog "log"
	"sync"
)

var (
	mu           sync.Mutex
	verbosity    int
	disabled     bool
	cacheMem     int
	cacheMaxMem  int
	cachePos     int
	cacheEntries []string
)

// SetVerbosity sets the global verbosity level. Logf calls at or below this
// level are emitted; everything else is suppressed.
func SetVerbosity(v int) {
	mu.Lock()
	defer mu.Unlock()
	verbosity = v
}

// EnableLogCaching enables in-memory caching of log output.
// Caches up to maxLines, but no more than maxMem bytes.
// Cached output can later be retrieved with CachedLogOutput.
func EnableLogCaching(maxLines, maxMem int) {
	mu.Lock()
	defer mu.Unlock()
	if cacheEntries != nil {
		panic("log caching is already enabled")
	}
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	cacheMaxMem = maxMem
	cacheEntries = make([]string, maxLines)
}

// CachedLogOutput retrieves cached log output.
func CachedLogOutput() string {
	mu.Lock()
	defer mu.Unlock()
	buf := new(bytes.Buffer)
	for i := range cacheEntries {
		pos := (cachePos + i) % len(cacheEntries)
		if cacheEntries[pos] == "" {
			continue
		}
		buf.WriteString(cacheEntries[pos])
		buf.WriteByte('\n')
	}
	return buf.String()
}

// DisableLog suppresses all further non-negative-level output.
func DisableLog() {
	mu.Lock()
	defer mu.Unlock()
	disabled = true
}

// Logf logs msg at verbosity level v. Negative v always logs, even when
// DisableLog was called.
func Logf(v int, msg string, args ...interface{}) {
	mu.Lock()
	doLog := v <= verbosity && (v < 0 || !disabled)
	if cacheEntries != nil {
		cacheMem -= len(cacheEntries[cachePos])
		if cacheMem < 0 {
			panic("log cache size underflow")
		}
		cacheEntries[cachePos] = fmt.Sprintf(msg, args...)
		cacheMem += len(cacheEntries[cachePos])
		cachePos++
		if cachePos == len(cacheEntries) {
			cachePos = 0
		}
		for i := 0; i < len(cacheEntries)-1 && cacheMem > cacheMaxMem; i++ {
			pos := (cachePos + i) % len(cacheEntries)
			cacheMem -= len(cacheEntries[pos])
			cacheEntries[pos] = ""
		}
		if cacheMem < 0 {
			panic("log cache size underflow")
		}
	}
	mu.Unlock()

	if doLog {
		golog.Printf(msg, args...)
	}
}

// Fatalf logs msg unconditionally and terminates the process with a
// non-zero exit code, matching the teacher's own fatal-on-setup-error
// convention.
func Fatalf(msg string, args ...interface{}) {
	golog.Fatalf(msg, args...)
}
