// Command moshdump inspects a compiled unit: -disasm prints a textual
// disassembly of every function; -run executes the unit and writes a CBOR
// snapshot of the final heap state to stdout for post-mortem inspection.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"moshvm/bytecode"
	"moshvm/heap"
	"moshvm/interp"
	"moshvm/vmconfig"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("moshdump: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the portable post-mortem document written by -run: the final
// heap contents keyed by reference, distinct from the execution-time
// big-endian wire format a unit file itself uses.
type Snapshot struct {
	ExitCode byte                  `cbor:"exit_code"`
	Objects  []heap.ObjectSnapshot `cbor:"objects"`
}

func main() {
	disasm := flag.Bool("disasm", false, "print a disassembly of every function")
	run := flag.Bool("run", false, "run the unit and write a CBOR heap snapshot to stdout")
	configPath := flag.String("config", "moshvm.toml", "path to moshvm.toml")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: moshdump (-disasm | -run) <unit-file>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 || *disasm == *run {
		flag.Usage()
		os.Exit(1)
	}
	unitPath := args[0]

	f, err := os.Open(unitPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "moshdump: %v\n", err)
		os.Exit(1)
	}
	unit, err := bytecode.Load(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "moshdump: loading %s: %v\n", unitPath, err)
		os.Exit(1)
	}

	if *disasm {
		disassemble(unit)
		return
	}

	cfg, err := vmconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "moshdump: %v\n", err)
		os.Exit(1)
	}
	vm := interp.New(unit, cfg.CallStack.CapacityBytes, cfg.CallStack.MaxFrames, nil, uint32(cfg.Process.DefaultOpenMode))
	vm.GCThreshold = cfg.Heap.GCThresholdObjects

	code, err := vm.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "moshdump: run failed: %v\n", err)
		os.Exit(1)
	}

	snap := Snapshot{ExitCode: code, Objects: vm.Heap.Snapshot()}
	data, err := cborEncMode.Marshal(snap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "moshdump: encoding snapshot: %v\n", err)
		os.Exit(1)
	}
	if _, err := os.Stdout.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "moshdump: writing snapshot: %v\n", err)
		os.Exit(1)
	}
}

func disassemble(unit *bytecode.Unit) {
	names := make([]string, 0, len(unit.Functions))
	for name := range unit.Functions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fn := unit.Functions[name]
		fmt.Println(fn.Disassemble(&unit.Pool))
	}
}
