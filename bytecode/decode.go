package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Load decodes a BytecodeUnit from r using the wire format of spec.md §6:
//
//	constant pool:
//	  string_count      uint32 BE
//	  for each string:   length uint32 BE, then that many UTF-8 bytes
//	  identifier_count   uint32 BE
//	  for each identifier: length uint32 BE, then bytes
//	  signature_count    uint32 BE
//	  for each signature:  length uint32 BE, then bytes
//	function table:
//	  function_count     uint32 BE
//	  for each function:
//	    identifier_index     uint32 BE (index into the identifier pool)
//	    locals_size          uint32 BE
//	    parameters_byte_count uint32 BE
//	    return_byte_count    uint32 BE
//	    instruction_count    uint32 BE
//	    instructions         instruction_count bytes
//
// This is the reference encoding used by this repository's tests, CLI, and
// disassembler; the real front-end/compiler (out of scope per spec.md §1)
// is free to produce bytes in this shape by any means.
func Load(r io.Reader) (*Unit, error) {
	pool, err := decodePool(r)
	if err != nil {
		return nil, err
	}

	fnCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading function count: %w", err)
	}

	functions := make(map[string]*Function, fnCount)
	for i := uint32(0); i < fnCount; i++ {
		fn, err := decodeFunction(r, &pool)
		if err != nil {
			return nil, err
		}
		functions[fn.Identifier] = fn
	}

	u := &Unit{Pool: pool, Functions: functions}
	if _, err := u.MainIdentifier(); err != nil {
		return nil, err
	}
	return u, nil
}

func decodePool(r io.Reader) (ConstantPool, error) {
	var pool ConstantPool
	var err error
	if pool.Strings, err = decodeStringTable(r); err != nil {
		return pool, fmt.Errorf("bytecode: decoding string pool: %w", err)
	}
	if pool.Identifiers, err = decodeStringTable(r); err != nil {
		return pool, fmt.Errorf("bytecode: decoding identifier pool: %w", err)
	}
	if pool.Signatures, err = decodeStringTable(r); err != nil {
		return pool, fmt.Errorf("bytecode: decoding signature pool: %w", err)
	}
	return pool, nil
}

func decodeStringTable(r io.Reader) ([]string, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, count)
	for i := uint32(0); i < count; i++ {
		length, err := readU32(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("reading string %d (%d bytes): %w", i, length, err)
		}
		out[i] = string(buf)
	}
	return out, nil
}

func decodeFunction(r io.Reader, pool *ConstantPool) (*Function, error) {
	idIdx, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading function identifier index: %w", err)
	}
	identifier, err := pool.Identifier(idIdx)
	if err != nil {
		return nil, err
	}

	localsSize, err := readU32(r)
	if err != nil {
		return nil, err
	}
	paramBytes, err := readU32(r)
	if err != nil {
		return nil, err
	}
	returnBytes, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if paramBytes > localsSize || returnBytes > localsSize {
		return nil, errStructure("function %q: parameters_byte_count(%d)/return_byte_count(%d) must be <= locals_size(%d)",
			identifier, paramBytes, returnBytes, localsSize)
	}

	instrCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	instrs := make([]byte, instrCount)
	if _, err := io.ReadFull(r, instrs); err != nil {
		return nil, fmt.Errorf("bytecode: reading instructions for %q: %w", identifier, err)
	}

	refOffsets, err := computeRefOffsets(instrs)
	if err != nil {
		return nil, fmt.Errorf("bytecode: analyzing %q: %w", identifier, err)
	}

	return &Function{
		Identifier:          identifier,
		LocalsSize:          int(localsSize),
		ParametersByteCount: int(paramBytes),
		ReturnByteCount:     int(returnBytes),
		Instructions:        instrs,
		RefOffsets:          refOffsets,
	}, nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
