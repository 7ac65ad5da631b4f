package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble returns a human-readable instruction listing for fn, in the
// same spirit as the teacher's Chunk.Disassemble — one line per
// instruction, offset-prefixed, immediates decoded.
func (fn *Function) Disassemble(pool *ConstantPool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s (locals=%d params=%d return=%d)\n",
		fn.Identifier, fn.LocalsSize, fn.ParametersByteCount, fn.ReturnByteCount)

	instrs := fn.Instructions
	ip := 0
	for ip < len(instrs) {
		start := ip
		op := Op(instrs[ip])
		ip++
		width := immediateWidths[op]

		fmt.Fprintf(&sb, "%6d  %-16s", start, op.Name())
		if ip+width <= len(instrs) {
			switch width {
			case 1:
				fmt.Fprintf(&sb, " %d", int8(instrs[ip]))
			case 4:
				idx := binary.BigEndian.Uint32(instrs[ip : ip+4])
				if op == OpPushString && pool != nil {
					if s, err := pool.String(idx); err == nil {
						fmt.Fprintf(&sb, " %d ; %q", idx, s)
					} else {
						fmt.Fprintf(&sb, " %d", idx)
					}
				} else if op == OpInvoke && pool != nil {
					if s, err := pool.Identifier(idx); err == nil {
						fmt.Fprintf(&sb, " %d ; %s", idx, s)
					} else {
						fmt.Fprintf(&sb, " %d", idx)
					}
				} else {
					fmt.Fprintf(&sb, " %d", idx)
				}
			case 8:
				fmt.Fprintf(&sb, " %d", binary.BigEndian.Uint64(instrs[ip:ip+8]))
			}
		}
		sb.WriteByte('\n')
		ip += width
	}
	return sb.String()
}
