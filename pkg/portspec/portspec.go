// Package portspec implements the port list (an optional ordered
// sequence of legal port addresses) and the CLI grammar that builds one:
// comma-separated tokens, each a single unsigned integer or a LOW-HIGH
// inclusive range, values clamped to 0xFFFF, duplicates permitted.
package portspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ioport-tools/portfuzz/pkg/rng"
	"github.com/ioport-tools/portfuzz/pkg/varray"
)

// MaxPort is the top of the 16-bit port address space.
const MaxPort = 0xFFFF

// List is an ordered sequence of port addresses backed by varray.Array,
// reference-counted so destruction is safe while shared across fuzzers.
type List struct {
	ports *varray.Array[uint16]
}

// New returns a List containing ports, with one reference. A nil or
// empty slice yields a List whose Len is zero; callers should treat a
// zero-length list the same as "no list" per spec.
func New(ports []uint16) *List {
	return &List{ports: varray.NewFrom(ports)}
}

// Ref increments the reference count and returns l.
func (l *List) Ref() *List {
	l.ports.Ref()
	return l
}

// Unref decrements the reference count.
func (l *List) Unref() {
	l.ports.Unref()
}

// Len returns the number of ports in the list.
func (l *List) Len() int {
	return l.ports.Len()
}

// At returns the port at index i.
func (l *List) At(i int) uint16 {
	return l.ports.At(i)
}

// PickOrUniform draws a port address: uniformly over the list's natural
// indexing if non-empty, otherwise uniformly over the full [0, 0xFFFF]
// space. This keeps the port-slot variate derivation in one place so
// both the variate generator and tests share the same logic.
func (l *List) PickOrUniform(r *rng.RNG) uint16 {
	if l == nil {
		return uint16(r.UniformRange(0, MaxPort))
	}
	n := l.Len()
	if n == 0 {
		return uint16(r.UniformRange(0, MaxPort))
	}
	return l.At(int(r.UniformRange(0, uint64(n-1))))
}

// Parse translates the --ports CLI grammar into a List: comma-separated
// tokens, each a single unsigned integer or a LOW-HIGH inclusive range.
// Values above 0xFFFF are clamped to 0xFFFF. An empty spec yields an
// empty (nil-equivalent) List.
func Parse(spec string) (*List, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return New(nil), nil
	}
	var ports []uint16
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(tok, "-")
		loN, err := parsePort(lo)
		if err != nil {
			return nil, fmt.Errorf("portspec: bad token %q: %w", tok, err)
		}
		if !isRange {
			ports = append(ports, loN)
			continue
		}
		hiN, err := parsePort(hi)
		if err != nil {
			return nil, fmt.Errorf("portspec: bad token %q: %w", tok, err)
		}
		if loN > hiN {
			return nil, fmt.Errorf("portspec: bad token %q: range reversed", tok)
		}
		for p := uint32(loN); p <= uint32(hiN); p++ {
			ports = append(ports, uint16(p))
		}
	}
	return New(ports), nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, err
	}
	if v > MaxPort {
		v = MaxPort
	}
	return uint16(v), nil
}
