// Package vmconfig handles moshvm.toml configuration: the VM-level tunables
// spec.md leaves implementation-defined (call-stack arena size, frame
// limit, GC trigger threshold, default file mode for OPEN).
package vmconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level moshvm.toml shape.
type Config struct {
	CallStack CallStackConfig `toml:"callstack"`
	Heap      HeapConfig      `toml:"heap"`
	Process   ProcessConfig   `toml:"process"`
}

// CallStackConfig sizes the fixed-capacity frame arena, per spec.md §4.3.
type CallStackConfig struct {
	CapacityBytes int `toml:"capacity_bytes"`
	MaxFrames     int `toml:"max_frames"`
}

// HeapConfig tunes the mark-sweep collector's trigger. GCLog is parsed but
// not read by the interpreter; vmlog reports every GC cycle regardless of
// its value.
type HeapConfig struct {
	GCThresholdObjects int  `toml:"gc_threshold_objects"`
	GCLog              bool `toml:"gc_log"`
}

// ProcessConfig holds OS-facing defaults for the Process opcode group.
type ProcessConfig struct {
	DefaultOpenMode int `toml:"default_open_mode"`
}

// Defaults mirrors run_unit's CallStack::create(10000, ...) arena sizing
// and a conservative GC trigger; the VM must run with zero configuration.
func Defaults() Config {
	return Config{
		CallStack: CallStackConfig{
			CapacityBytes: 1 << 20,
			MaxFrames:     10000,
		},
		Heap: HeapConfig{
			GCThresholdObjects: 4096,
			GCLog:              false,
		},
		Process: ProcessConfig{
			DefaultOpenMode: 0o600,
		},
	}
}

// Load reads and parses path, applying Defaults for any zero-valued field
// a missing or partial file leaves unset. A missing file is not an error:
// Load(path) on a nonexistent path returns Defaults() unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("vmconfig: cannot read %s: %w", path, err)
	}

	var parsed Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return cfg, fmt.Errorf("vmconfig: parse error in %s: %w", path, err)
	}

	if parsed.CallStack.CapacityBytes != 0 {
		cfg.CallStack.CapacityBytes = parsed.CallStack.CapacityBytes
	}
	if parsed.CallStack.MaxFrames != 0 {
		cfg.CallStack.MaxFrames = parsed.CallStack.MaxFrames
	}
	if parsed.Heap.GCThresholdObjects != 0 {
		cfg.Heap.GCThresholdObjects = parsed.Heap.GCThresholdObjects
	}
	cfg.Heap.GCLog = parsed.Heap.GCLog
	if parsed.Process.DefaultOpenMode != 0 {
		cfg.Process.DefaultOpenMode = parsed.Process.DefaultOpenMode
	}

	return cfg, nil
}
