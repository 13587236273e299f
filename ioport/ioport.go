// Package ioport implements the instruction dispatcher: mapping a
// variate's selector slot to one of the twelve privileged x86 port-I/O
// instructions and issuing it with the operands bound to the registers
// each form expects.
package ioport

import (
	"errors"
	"fmt"
)

// ErrUnsupportedPlatform is returned by Dispatch on any GOOS/GOARCH other
// than linux/amd64 and linux/386: the twelve instructions only exist on
// the x86 family, and only the Linux iopl/ioperm model is wired up by
// pkg/harness. This keeps the rest of the engine buildable and testable
// everywhere; the dispatch path itself is the only platform-gated piece.
var ErrUnsupportedPlatform = errors.New("ioport: unsupported platform")

// Supported reports whether Dispatch can issue real instructions on the
// current GOOS/GOARCH. Callers that cannot hold the iopl(2) grant
// pkg/harness acquires at startup — unit tests, most of all — must
// treat a true result as "do not call Dispatch here": the instruction
// executes directly against the host CPU with no privilege check at
// the Go level, so without that grant it raises a protection fault
// that crashes the process rather than returning a Go error.
func Supported() bool {
	return supported
}

// Mnemonic names one of the twelve instructions this package can issue.
type Mnemonic string

const (
	INB   Mnemonic = "inb"
	INW   Mnemonic = "inw"
	INL   Mnemonic = "inl"
	INSB  Mnemonic = "insb"
	INSW  Mnemonic = "insw"
	INSL  Mnemonic = "insl"
	OUTB  Mnemonic = "outb"
	OUTW  Mnemonic = "outw"
	OUTL  Mnemonic = "outl"
	OUTSB Mnemonic = "outsb"
	OUTSW Mnemonic = "outsw"
	OUTSL Mnemonic = "outsl"
)

// mnemonics is the canonical selector order: the twelve instructions in
// the order the selector slot (variate index 0) picks among them.
var mnemonics = [12]Mnemonic{
	INB, INW, INL, INSB, INSW, INSL,
	OUTB, OUTW, OUTL, OUTSB, OUTSW, OUTSL,
}

// NumInstructions is the size of the selector space, [0, NumInstructions).
const NumInstructions = 12

// MnemonicIndex returns the position of m in the canonical selector
// order, or -1 if m is not one of the twelve mnemonics.
func MnemonicIndex(m Mnemonic) int {
	for i, n := range mnemonics {
		if n == m {
			return i
		}
	}
	return -1
}

// SelectorMnemonic returns the mnemonic a selector value would dispatch
// to, without dispatching it. The worker harness uses this to format a
// log line before the instruction is issued, so a crashing instruction
// still leaves a readable record of what it was about to do.
func SelectorMnemonic(sel uint64) (Mnemonic, error) {
	if sel >= uint64(len(mnemonics)) {
		return "", fmt.Errorf("ioport: selector %d out of range", sel)
	}
	return mnemonics[sel], nil
}

// ioArgs mirrors the register binding every dispatch uses, regardless
// of whether the issued instruction actually reads a given slot:
// a/b/c/port/si/di are loaded into A/B/C/D/SI/DI before every one of
// the twelve instructions, even the ones that never touch B, SI or DI.
// Kept as-is rather than special-cased per instruction. Field offsets
// are consumed by the assembly stubs via the go_asm.h header the
// toolchain generates for this package.
type ioArgs struct {
	a, b   uint64
	c      uint32
	port   uint16
	si, di uintptr
	result uint64
}

// dispatchFunc is the signature every platform's assembly stub
// implements, selected from dispatchTable by the selector slot.
type dispatchFunc func(*ioArgs)

// Dispatch issues exactly one of the twelve port-I/O instructions,
// selected by v[0] (must be in [0,11]), with v[1..6] bound to
// A/B/C/D/SI/DI, each truncated to the width its field suffix implies.
// It returns the mnemonic issued and, for the in* variants, the value
// read back into A (zero for out* variants, which is not logged — the
// harness logs the pre-dispatch variate tuple, not this return value).
// On any platform other than linux/amd64 or linux/386 it returns
// ErrUnsupportedPlatform without touching hardware.
func Dispatch(v [7]uint64) (Mnemonic, uint64, error) {
	if v[0] >= uint64(len(mnemonics)) {
		return "", 0, fmt.Errorf("ioport: selector %d out of range", v[0])
	}
	sel := int(v[0])
	if !supported {
		return mnemonics[sel], 0, ErrUnsupportedPlatform
	}
	args := &ioArgs{
		a:    v[1],
		b:    v[2],
		c:    uint32(v[3]),
		port: uint16(v[4]),
		si:   uintptr(v[5]),
		di:   uintptr(v[6]),
	}
	dispatchTable[sel](args)
	return mnemonics[sel], args.result, nil
}
