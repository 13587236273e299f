//go:build linux && (amd64 || 386)

package harness

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrPrivilegeDenied wraps whatever the kernel returned when it refused
// to raise the process's I/O-port privilege level.
var ErrPrivilegeDenied = fmt.Errorf("harness: privilege acquisition denied")

// fullIopl is the iopl(2) level that grants unrestricted access to the
// full 16-bit port space from user mode.
const fullIopl = 3

// AcquirePrivilege raises the calling process's I/O-port privilege level
// to permit user-mode execution of all twelve port instructions on the
// full 16-bit port space. It must be called once, before any worker is
// spawned.
func AcquirePrivilege() error {
	if err := unix.Iopl(fullIopl); err != nil {
		return fmt.Errorf("%w: %v", ErrPrivilegeDenied, err)
	}
	return nil
}
