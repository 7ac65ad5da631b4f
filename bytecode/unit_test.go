package bytecode

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func be32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func be64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func buildMainUnit(t *testing.T) *Unit {
	t.Helper()
	// <main>() body: PUSH_INT 7; PUSH_INT 3; INT_MOD; RETURN
	instrs := []byte{}
	instrs = append(instrs, byte(OpPushInt))
	instrs = append(instrs, be64Bytes(7)...)
	instrs = append(instrs, byte(OpPushInt))
	instrs = append(instrs, be64Bytes(3)...)
	instrs = append(instrs, byte(OpIntMod))
	instrs = append(instrs, byte(OpReturn))

	u := &Unit{
		Pool: ConstantPool{
			Identifiers: []string{"mod::<main>"},
		},
		Functions: map[string]*Function{},
	}
	fn := &Function{
		Identifier:          "mod::<main>",
		LocalsSize:          8,
		ParametersByteCount: 0,
		ReturnByteCount:     8,
		Instructions:        instrs,
	}
	offs, err := computeRefOffsets(instrs)
	if err != nil {
		t.Fatal(err)
	}
	fn.RefOffsets = offs
	u.Functions[fn.Identifier] = fn
	return u
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	u := buildMainUnit(t)

	var buf bytes.Buffer
	if err := u.Encode(&buf); err != nil {
		t.Fatal(err)
	}

	decoded, err := Load(&buf)
	if err != nil {
		t.Fatal(err)
	}

	fn, ok := decoded.Functions["mod::<main>"]
	if !ok {
		t.Fatal("missing main function after round trip")
	}
	if fn.ReturnByteCount != 8 {
		t.Fatalf("return_byte_count = %d", fn.ReturnByteCount)
	}
	if !bytes.Equal(fn.Instructions, u.Functions["mod::<main>"].Instructions) {
		t.Fatal("instructions did not round trip")
	}

	if _, err := decoded.MainIdentifier(); err != nil {
		t.Fatalf("MainIdentifier: %v", err)
	}
}

func TestLoadMissingMainFails(t *testing.T) {
	u := &Unit{
		Pool:      ConstantPool{Identifiers: []string{"mod::helper"}},
		Functions: map[string]*Function{"mod::helper": {Identifier: "mod::helper", LocalsSize: 1, ParametersByteCount: 1}},
	}
	var buf bytes.Buffer
	if err := u.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(&buf); err == nil {
		t.Fatal("expected InvalidBytecodeStructure for missing <main>")
	}
}

func TestComputeRefOffsetsFindsGetSetRef(t *testing.T) {
	instrs := []byte{}
	instrs = append(instrs, byte(OpGetRef))
	instrs = append(instrs, be32Bytes(16)...)
	instrs = append(instrs, byte(OpSetRef))
	instrs = append(instrs, be32Bytes(24)...)
	instrs = append(instrs, byte(OpReturn))

	offs, err := computeRefOffsets(instrs)
	if err != nil {
		t.Fatal(err)
	}
	if !offs[16] || !offs[24] {
		t.Fatalf("expected ref offsets 16 and 24, got %+v", offs)
	}
	if len(offs) != 2 {
		t.Fatalf("unexpected extra offsets: %+v", offs)
	}
}

func TestDisassembleDoesNotPanic(t *testing.T) {
	u := buildMainUnit(t)
	fn := u.Functions["mod::<main>"]
	out := fn.Disassemble(&u.Pool)
	if out == "" {
		t.Fatal("expected non-empty disassembly")
	}
}
