//go:build freebsd || netbsd || openbsd || linux || darwin

package harness

import "syscall"

// lock/unlock implement the sink's file-granularity advisory lock with
// syscall.Flock, the exact technique the teacher uses in
// pkg/osutil.ProcessTempDir to serialize access to a shared file across
// processes. Stdout has no meaningful file lock (there is only ever one
// process attached to a terminal in the scenarios this engine targets),
// so it is a no-op there.
func (s *Sink) lock() error {
	if s.isStdout {
		return nil
	}
	return syscall.Flock(int(s.f.Fd()), syscall.LOCK_EX)
}

func (s *Sink) unlock() error {
	if s.isStdout {
		return nil
	}
	return syscall.Flock(int(s.f.Fd()), syscall.LOCK_UN)
}
