//go:build linux && 386

package ioport

const supported = true

//go:noescape
func dispatchInb(args *ioArgs)

//go:noescape
func dispatchInw(args *ioArgs)

//go:noescape
func dispatchInl(args *ioArgs)

//go:noescape
func dispatchInsb(args *ioArgs)

//go:noescape
func dispatchInsw(args *ioArgs)

//go:noescape
func dispatchInsl(args *ioArgs)

//go:noescape
func dispatchOutb(args *ioArgs)

//go:noescape
func dispatchOutw(args *ioArgs)

//go:noescape
func dispatchOutl(args *ioArgs)

//go:noescape
func dispatchOutsb(args *ioArgs)

//go:noescape
func dispatchOutsw(args *ioArgs)

//go:noescape
func dispatchOutsl(args *ioArgs)

var dispatchTable = [NumInstructions]dispatchFunc{
	dispatchInb, dispatchInw, dispatchInl,
	dispatchInsb, dispatchInsw, dispatchInsl,
	dispatchOutb, dispatchOutw, dispatchOutl,
	dispatchOutsb, dispatchOutsw, dispatchOutsl,
}
