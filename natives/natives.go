// Package natives implements the native function registry of spec.md
// §4.8: a mapping from qualified name to a host-implemented function
// invoked synchronously, with the uniform (operands, memory) signature.
//
// Grounded on the teacher's primitive-implementation style in
// vm/string_primitives.go and vm/dictionary_primitives.go: one function
// per selector, each popping its fixed arity off the stack and pushing a
// single result (or nothing, for void-returning operations).
package natives

import (
	"bufio"
	"math"
	"os"
	"strconv"
	"strings"

	"moshvm/heap"
	"moshvm/operand"
	"moshvm/vmerr"
)

// Memory bundles the runtime state a native needs beyond the caller's
// operand stack: the heap, the interned-string table, a GC trigger, and
// the program's argv (spec.md §6's `program_arguments`).
type Memory struct {
	Heap    *heap.Heap
	Strings *heap.StringTable
	RunGC   func() heap.Stats
	Args    []string
	Stdin   *bufio.Reader
}

// Func is a native function: it pops/pushes on ops per its fixed stack
// contract and may return a *vmerr.Fault (e.g. from `panic`) or a
// *vmerr.ExitRequest (from `exit`). Natives execute to completion within
// one dispatch step and must not suspend, per spec.md §4.6.
type Func func(ops *operand.Stack, mem *Memory) error

// Registry maps qualified names (matching the bytecode's constant-pool
// identifier exactly) to native implementations.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry builds a registry pre-populated with every native required
// by spec.md §4.8.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.registerStandardLibrary()
	return r
}

// Register adds or overrides a native under name.
func (r *Registry) Register(name string, fn Func) { r.funcs[name] = fn }

// Lookup returns the native registered under name, if any.
func (r *Registry) Lookup(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

func (r *Registry) registerStandardLibrary() {
	// Numeric
	r.Register("lang::Int::to_string", natIntToString)
	r.Register("lang::Float::to_string", natFloatToString)
	r.Register("lang::parse_int_radix", natParseIntRadix)
	r.Register("lang::ceil", natCeil)
	r.Register("lang::floor", natFloor)
	r.Register("lang::round", natRound)

	// String
	r.Register("lang::String::concat", natStringConcat)
	r.Register("lang::String::eq", natStringEq)
	r.Register("lang::String::split", natStringSplit)
	r.Register("lang::String::bytes", natStringBytes)

	// Vector
	r.Register("lang::new_vec", natNewVec)
	r.Register("lang::Vec::len", natVecLen)
	r.Register("lang::Vec::push", natVecPush)
	r.Register("lang::Vec::pop", natVecPop)
	r.Register("lang::Vec::pop_head", natVecPopHead)
	r.Register("lang::Vec::[]", natVecGet)
	r.Register("lang::Vec::[]=", natVecSet)

	// Environment / process
	r.Register("lang::env", natEnv)
	r.Register("lang::set_env", natSetEnv)
	r.Register("lang::read_line", natReadLine)
	r.Register("lang::exit", natExit)
	r.Register("lang::panic", natPanic)
	r.Register("lang::program_arguments", natProgramArguments)

	// Option-like
	r.Register("lang::some", natSome)
	r.Register("lang::none", natNone)

	// Introspection
	r.Register("lang::empty_operands", natEmptyOperands)
	r.Register("std::memory::gc", natMemoryGC)
}

func popString(ops *operand.Stack, mem *Memory) (string, error) {
	ref, err := ops.PopRef()
	if err != nil {
		return "", vmerr.Wrap(vmerr.KindOperandStackUnderflow, err, "popping string reference")
	}
	obj, err := mem.Heap.Get(heap.Ref(ref))
	if err != nil {
		return "", vmerr.Wrap(vmerr.KindRuntimeException, err, "dereferencing string")
	}
	if obj.Kind != heap.KindString {
		return "", vmerr.New(vmerr.KindRuntimeException, "reference does not point to a string (kind=%s)", obj.Kind)
	}
	return obj.Str, nil
}

func pushString(ops *operand.Stack, mem *Memory, s string) error {
	ref := mem.Strings.Intern(s)
	return ops.PushRef(uint64(ref))
}

func natIntToString(ops *operand.Stack, mem *Memory) error {
	v, err := ops.PopInt()
	if err != nil {
		return err
	}
	return pushString(ops, mem, strconv.FormatInt(v, 10))
}

func natFloatToString(ops *operand.Stack, mem *Memory) error {
	v, err := ops.PopDouble()
	if err != nil {
		return err
	}
	return pushString(ops, mem, strconv.FormatFloat(v, 'g', -1, 64))
}

func natParseIntRadix(ops *operand.Stack, mem *Memory) error {
	radix, err := ops.PopByte()
	if err != nil {
		return err
	}
	s, err := popString(ops, mem)
	if err != nil {
		return err
	}
	v, err := strconv.ParseInt(s, int(radix), 64)
	if err != nil {
		return vmerr.Wrap(vmerr.KindRuntimeException, err, "parse_int_radix(%q, %d)", s, radix)
	}
	return ops.PushInt(v)
}

func natCeil(ops *operand.Stack, mem *Memory) error  { return unaryFloat(ops, math.Ceil) }
func natFloor(ops *operand.Stack, mem *Memory) error { return unaryFloat(ops, math.Floor) }
func natRound(ops *operand.Stack, mem *Memory) error { return unaryFloat(ops, math.Round) }

func unaryFloat(ops *operand.Stack, fn func(float64) float64) error {
	v, err := ops.PopDouble()
	if err != nil {
		return err
	}
	return ops.PushDouble(fn(v))
}

func natStringConcat(ops *operand.Stack, mem *Memory) error {
	b, err := popString(ops, mem)
	if err != nil {
		return err
	}
	a, err := popString(ops, mem)
	if err != nil {
		return err
	}
	return pushString(ops, mem, a+b)
}

func natStringEq(ops *operand.Stack, mem *Memory) error {
	b, err := popString(ops, mem)
	if err != nil {
		return err
	}
	a, err := popString(ops, mem)
	if err != nil {
		return err
	}
	if a == b {
		return ops.PushByte(1)
	}
	return ops.PushByte(0)
}

func natStringSplit(ops *operand.Stack, mem *Memory) error {
	sep, err := popString(ops, mem)
	if err != nil {
		return err
	}
	subject, err := popString(ops, mem)
	if err != nil {
		return err
	}
	parts := strings.Split(subject, sep)
	refs := make([]heap.Ref, len(parts))
	for i, p := range parts {
		refs[i] = mem.Heap.EmplaceString(p)
	}
	return ops.PushRef(uint64(mem.Heap.EmplaceVector(refs)))
}

func natStringBytes(ops *operand.Stack, mem *Memory) error {
	s, err := popString(ops, mem)
	if err != nil {
		return err
	}
	raw := []byte(s)
	refs := make([]heap.Ref, len(raw))
	for i, b := range raw {
		refs[i] = mem.Heap.EmplaceInt(int64(b))
	}
	return ops.PushRef(uint64(mem.Heap.EmplaceVector(refs)))
}

func natNewVec(ops *operand.Stack, mem *Memory) error {
	return ops.PushRef(uint64(mem.Heap.EmplaceVector(nil)))
}

func popVector(ops *operand.Stack, mem *Memory) (heap.Ref, *heap.Object, error) {
	ref, err := ops.PopRef()
	if err != nil {
		return 0, nil, err
	}
	obj, err := mem.Heap.Get(heap.Ref(ref))
	if err != nil {
		return 0, nil, vmerr.Wrap(vmerr.KindRuntimeException, err, "dereferencing vector")
	}
	if obj.Kind != heap.KindVector {
		return 0, nil, vmerr.New(vmerr.KindRuntimeException, "reference does not point to a vector (kind=%s)", obj.Kind)
	}
	return heap.Ref(ref), obj, nil
}

func natVecLen(ops *operand.Stack, mem *Memory) error {
	_, obj, err := popVector(ops, mem)
	if err != nil {
		return err
	}
	return ops.PushInt(int64(len(obj.Vec)))
}

func natVecPush(ops *operand.Stack, mem *Memory) error {
	elem, err := ops.PopRef()
	if err != nil {
		return err
	}
	_, obj, err := popVector(ops, mem)
	if err != nil {
		return err
	}
	obj.Vec = append(obj.Vec, heap.Ref(elem))
	return nil
}

func natVecPop(ops *operand.Stack, mem *Memory) error {
	_, obj, err := popVector(ops, mem)
	if err != nil {
		return err
	}
	if len(obj.Vec) == 0 {
		return vmerr.New(vmerr.KindRuntimeException, "Vec::pop on an empty vector")
	}
	last := obj.Vec[len(obj.Vec)-1]
	obj.Vec = obj.Vec[:len(obj.Vec)-1]
	return ops.PushRef(uint64(last))
}

func natVecPopHead(ops *operand.Stack, mem *Memory) error {
	_, obj, err := popVector(ops, mem)
	if err != nil {
		return err
	}
	if len(obj.Vec) == 0 {
		return vmerr.New(vmerr.KindRuntimeException, "Vec::pop_head on an empty vector")
	}
	head := obj.Vec[0]
	obj.Vec = obj.Vec[1:]
	return ops.PushRef(uint64(head))
}

func natVecGet(ops *operand.Stack, mem *Memory) error {
	idx, err := ops.PopInt()
	if err != nil {
		return err
	}
	_, obj, err := popVector(ops, mem)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(obj.Vec) {
		return vmerr.New(vmerr.KindRuntimeException, "Vec::[] index %d out of bounds (len=%d)", idx, len(obj.Vec))
	}
	return ops.PushRef(uint64(obj.Vec[idx]))
}

func natVecSet(ops *operand.Stack, mem *Memory) error {
	value, err := ops.PopRef()
	if err != nil {
		return err
	}
	idx, err := ops.PopInt()
	if err != nil {
		return err
	}
	_, obj, err := popVector(ops, mem)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(obj.Vec) {
		return vmerr.New(vmerr.KindRuntimeException, "Vec::[]= index %d out of bounds (len=%d)", idx, len(obj.Vec))
	}
	obj.Vec[idx] = heap.Ref(value)
	return nil
}

func natEnv(ops *operand.Stack, mem *Memory) error {
	name, err := popString(ops, mem)
	if err != nil {
		return err
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return ops.PushRef(0)
	}
	return pushString(ops, mem, v)
}

func natSetEnv(ops *operand.Stack, mem *Memory) error {
	value, err := popString(ops, mem)
	if err != nil {
		return err
	}
	name, err := popString(ops, mem)
	if err != nil {
		return err
	}
	if err := os.Setenv(name, value); err != nil {
		return vmerr.Wrap(vmerr.KindRuntimeException, err, "set_env(%q)", name)
	}
	return nil
}

func natReadLine(ops *operand.Stack, mem *Memory) error {
	if mem.Stdin == nil {
		mem.Stdin = bufio.NewReader(os.Stdin)
	}
	line, err := mem.Stdin.ReadString('\n')
	if err != nil && line == "" {
		return vmerr.Wrap(vmerr.KindRuntimeException, err, "read_line")
	}
	line = strings.TrimRight(line, "\n")
	return pushString(ops, mem, line)
}

func natExit(ops *operand.Stack, mem *Memory) error {
	code, err := ops.PopByte()
	if err != nil {
		return err
	}
	return &vmerr.ExitRequest{Code: byte(code)}
}

func natPanic(ops *operand.Stack, mem *Memory) error {
	msg, err := popString(ops, mem)
	if err != nil {
		return err
	}
	return vmerr.Panic(msg)
}

func natProgramArguments(ops *operand.Stack, mem *Memory) error {
	refs := make([]heap.Ref, len(mem.Args))
	for i, a := range mem.Args {
		refs[i] = mem.Heap.EmplaceString(a)
	}
	return ops.PushRef(uint64(mem.Heap.EmplaceVector(refs)))
}

func natSome(ops *operand.Stack, mem *Memory) error {
	v, err := ops.PopRef()
	if err != nil {
		return err
	}
	return ops.PushRef(v)
}

func natNone(ops *operand.Stack, mem *Memory) error {
	return ops.PushRef(0)
}

func natEmptyOperands(ops *operand.Stack, mem *Memory) error {
	if ops.Size() == 0 {
		return ops.PushByte(1)
	}
	return ops.PushByte(0)
}

func natMemoryGC(ops *operand.Stack, mem *Memory) error {
	if mem.RunGC == nil {
		return vmerr.New(vmerr.KindRuntimeException, "memory::gc invoked without a GC root source wired up")
	}
	mem.RunGC()
	return nil
}
