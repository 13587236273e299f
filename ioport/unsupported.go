//go:build !((linux && amd64) || (linux && 386))

package ioport

// supported is false everywhere except linux/amd64 and linux/386; on
// every other GOOS/GOARCH Dispatch returns ErrUnsupportedPlatform
// before dispatchTable would ever be indexed, so it is left nil here —
// the rest of the engine still builds and tests on any platform: this
// is a single-architecture-family hardware fuzzer, not a portable one.
const supported = false

var dispatchTable = [NumInstructions]dispatchFunc{}
