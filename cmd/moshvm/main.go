// Command moshvm loads a compiled unit and runs it to completion, mapping
// the interpreter's result onto the host process's exit code.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"moshvm/bytecode"
	"moshvm/interp"
	"moshvm/process"
	"moshvm/vmconfig"
	"moshvm/vmerr"
)

func main() {
	configPath := flag.String("config", "moshvm.toml", "path to moshvm.toml")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: moshvm [options] <unit-file> [program-args...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(process.ExitCommandNotRunnable)
	}
	unitPath, programArgs := args[0], args[1:]

	cfg, err := vmconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "moshvm: %v\n", err)
		os.Exit(process.ExitIOError)
	}

	f, err := os.Open(unitPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "moshvm: %v\n", err)
		os.Exit(process.ExitIOError)
	}
	unit, err := bytecode.Load(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "moshvm: loading %s: %v\n", unitPath, err)
		os.Exit(process.ExitIOError)
	}

	vm := interp.New(unit, cfg.CallStack.CapacityBytes, cfg.CallStack.MaxFrames, programArgs, uint32(cfg.Process.DefaultOpenMode))
	vm.GCThreshold = cfg.Heap.GCThresholdObjects

	code, err := vm.Run()
	if err != nil {
		var fault *vmerr.Fault
		if errors.As(err, &fault) {
			fmt.Fprintf(os.Stderr, "moshvm: %v\n", fault)
			os.Exit(process.ExitPanic)
		}
		fmt.Fprintf(os.Stderr, "moshvm: %v\n", err)
		os.Exit(process.ExitPanic)
	}
	os.Exit(int(code))
}
