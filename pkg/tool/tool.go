// Package tool contains small helpers shared by portfuzz's command-line
// entry point for uniform "print to stderr, exit 1" diagnostics.
package tool

import (
	"fmt"
	"os"
)

// Failf prints a formatted diagnostic to stderr and exits with status 1.
func Failf(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}

// Fail prints err to stderr and exits with status 1.
func Fail(err error) {
	Failf("%v", err)
}
