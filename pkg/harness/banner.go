package harness

import (
	"fmt"
	"io"
	"time"
)

// GraceCountdown is the responsibility-2 destructive-operation warning:
// unless quiet is set, print a warning to w and count down for the
// given duration, one second at a time, so an operator watching stderr
// has a last chance to abort before any worker touches hardware.
func GraceCountdown(w io.Writer, quiet bool, d time.Duration) {
	if quiet {
		return
	}
	fmt.Fprintln(w, "portfuzz: about to drive raw port I/O against live hardware.")
	fmt.Fprintln(w, "portfuzz: this can hang, crash, or corrupt peripheral and chipset state.")
	for remaining := d; remaining > 0; remaining -= time.Second {
		fmt.Fprintf(w, "portfuzz: starting in %d...\n", remaining/time.Second)
		time.Sleep(time.Second)
	}
}
