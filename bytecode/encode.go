package bytecode

import (
	"encoding/binary"
	"io"
	"sort"
)

// Encode writes u back out in the §6 wire format Load understands, used by
// the round-trip tests.
func (u *Unit) Encode(w io.Writer) error {
	if err := encodeStringTable(w, u.Pool.Strings); err != nil {
		return err
	}
	if err := encodeStringTable(w, u.Pool.Identifiers); err != nil {
		return err
	}
	if err := encodeStringTable(w, u.Pool.Signatures); err != nil {
		return err
	}

	// Stable order: index into the identifier pool when present, else
	// lexical order, so two encodes of the same Unit value are
	// byte-identical.
	order := make([]string, 0, len(u.Functions))
	for id := range u.Functions {
		order = append(order, id)
	}
	idIndex := make(map[string]uint32, len(u.Pool.Identifiers))
	for i, id := range u.Pool.Identifiers {
		idIndex[id] = uint32(i)
	}
	sort.Slice(order, func(i, j int) bool {
		ii, iok := idIndex[order[i]]
		jj, jok := idIndex[order[j]]
		if iok != jok {
			return iok
		}
		if iok {
			return ii < jj
		}
		return order[i] < order[j]
	})

	if err := writeU32(w, uint32(len(order))); err != nil {
		return err
	}
	for _, id := range order {
		fn := u.Functions[id]
		idx, ok := idIndex[id]
		if !ok {
			return errStructure("function %q has no matching identifier pool entry", id)
		}
		if err := writeU32(w, idx); err != nil {
			return err
		}
		if err := writeU32(w, uint32(fn.LocalsSize)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(fn.ParametersByteCount)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(fn.ReturnByteCount)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(fn.Instructions))); err != nil {
			return err
		}
		if _, err := w.Write(fn.Instructions); err != nil {
			return err
		}
	}
	return nil
}

func encodeStringTable(w io.Writer, strs []string) error {
	if err := writeU32(w, uint32(len(strs))); err != nil {
		return err
	}
	for _, s := range strs {
		if err := writeU32(w, uint32(len(s))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
