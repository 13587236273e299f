//go:build !(linux && (amd64 || 386))

package harness

import "errors"

// ErrPrivilegeDenied wraps whatever the kernel returned when it refused
// to raise the process's I/O-port privilege level.
var ErrPrivilegeDenied = errors.New("harness: privilege acquisition denied")

// AcquirePrivilege always fails outside linux/amd64 and linux/386: the
// iopl(2) syscall this relies on is Linux/x86-specific, and so is the
// rest of this engine's reason for existing.
func AcquirePrivilege() error {
	return ErrPrivilegeDenied
}
