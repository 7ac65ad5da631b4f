// Package locals implements the per-frame locals area of spec.md §4.2:
// byte-indexed typed accessors over a fixed-size scratch window, bounds
// checked against the frame's declared locals_size.
package locals

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Locals is a view over a frame's locals window within the call-stack
// arena. Unlike the operand stack (whose ref-ness is tracked dynamically
// because stack positions shift), a local variable's byte offset is fixed
// for the lifetime of a function, so which offsets ever hold a reference
// is knowable statically from the bytecode (every GET_REF/SET_REF operand
// offset) — per spec.md §9's GC root discovery note. RefOffsets carries
// that static set in, computed once when the function is loaded
// (bytecode.Function.RefOffsets), rather than being tracked per write.
type Locals struct {
	buf        []byte
	refOffsets map[int]bool
}

// New wraps buf as a locals area. len(buf) is the frame's locals_size.
// refOffsets is the function's statically-known set of ref-typed local
// offsets; pass nil for none.
func New(buf []byte, refOffsets map[int]bool) *Locals {
	return &Locals{buf: buf, refOffsets: refOffsets}
}

// Size returns the declared locals_size for this frame.
func (l *Locals) Size() int { return len(l.buf) }

func (l *Locals) bounds(at, width int) error {
	if at < 0 || at+width > len(l.buf) {
		return fmt.Errorf("locals: offset %d+%d out of bound (locals_size=%d)", at, width, len(l.buf))
	}
	return nil
}

// GetByte reads a signed byte at offset.
func (l *Locals) GetByte(at int) (int8, error) {
	if err := l.bounds(at, 1); err != nil {
		return 0, err
	}
	return int8(l.buf[at]), nil
}

// SetByte writes a signed byte at offset.
func (l *Locals) SetByte(at int, v int8) error {
	if err := l.bounds(at, 1); err != nil {
		return err
	}
	l.buf[at] = byte(v)
	return nil
}

// GetQWord reads a qword integer at offset.
func (l *Locals) GetQWord(at int) (int64, error) {
	if err := l.bounds(at, 8); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(l.buf[at : at+8])), nil
}

// SetQWord writes a qword integer at offset.
func (l *Locals) SetQWord(at int, v int64) error {
	if err := l.bounds(at, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(l.buf[at:at+8], uint64(v))
	return nil
}

// GetDouble reads an IEEE-754 binary64 value at offset (shares storage
// width with GetQWord; the opcode dictates interpretation).
func (l *Locals) GetDouble(at int) (float64, error) {
	v, err := l.GetQWord(at)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

// SetDouble writes an IEEE-754 binary64 value at offset.
func (l *Locals) SetDouble(at int, v float64) error {
	return l.SetQWord(at, int64(math.Float64bits(v)))
}

// GetRef reads a heap reference at offset.
func (l *Locals) GetRef(at int) (uint64, error) {
	if err := l.bounds(at, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(l.buf[at : at+8]), nil
}

// SetRef writes a heap reference at offset.
func (l *Locals) SetRef(at int, v uint64) error {
	if err := l.bounds(at, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(l.buf[at:at+8], v)
	return nil
}

// RefOffsets returns the statically-known set of byte offsets that hold
// reference-typed values in this frame, used by the garbage collector to
// scan this locals area as a root source.
func (l *Locals) RefOffsets() map[int]bool { return l.refOffsets }

// Put copies raw bytes starting at offset 0 — used by the interpreter to
// transfer a caller's argument block verbatim into a callee's locals, per
// spec.md §4.6.
func (l *Locals) Put(data []byte) error {
	if len(data) > len(l.buf) {
		return fmt.Errorf("locals: argument block of %d bytes exceeds locals_size %d", len(data), len(l.buf))
	}
	copy(l.buf, data)
	return nil
}
