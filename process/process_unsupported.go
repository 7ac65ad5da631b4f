//go:build !(linux && (amd64 || 386))

package process

import "fmt"

// On platforms without a raw fork(2) syscall (or outside Linux entirely),
// FORK/EXEC/WAIT/OPEN/PIPE/READ/WRITE all fail uniformly: this VM's
// process-lifecycle opcodes (spec.md §4.7) are POSIX-fork-shaped by
// design and have no portable equivalent worth emulating (see
// SPEC_FULL.md's process package note and DESIGN.md).

const (
	ExitOSError            = 71
	ExitIOError            = 74
	ExitCommandNotRunnable = 126
	ExitPanic              = 255
)

var errUnsupported = fmt.Errorf("process: fork-based process primitives are not supported on this platform")

type ForkResult struct {
	IsChild       bool
	ChildPID      int
	CorrelationID string
}

func Fork() (ForkResult, error)             { return ForkResult{}, errUnsupported }
func Exec(args []string) error              { return errUnsupported }
func Wait(pid int) (byte, error)            { return 0, errUnsupported }
func Open(path string, flags int, mode uint32) (int, error) { return 0, errUnsupported }
func Close(fd int)                          {}
func Dup2(oldfd, newfd int) error           { return errUnsupported }
func Pipe() (int, int, error)               { return 0, 0, errUnsupported }
func ReadAll(fd int) (string, error)        { return "", errUnsupported }
func WriteAll(fd int, data []byte) error    { return errUnsupported }
