//go:build linux && (amd64 || 386)

// Package process implements the host-process integration of spec.md
// §4.7: fork/exec/pipe/wait/open/read/write/redirect, backed by real OS
// processes and file descriptors (not an in-process goroutine simulation
// — see SPEC_FULL.md §5 and DESIGN.md Open Question OQ-1).
//
// Raw fork(2) is only exposed as a direct syscall on a subset of Linux
// architectures (arm64 and others require the clone(2) family instead);
// this package is built only where SYS_FORK exists, matching the
// original C++ VM's own implicit assumption of a fork()-providing POSIX
// target.
package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Sysexits-style OS error exit codes, pinned per SPEC_FULL.md §9.3
// (spec.md §6 leaves the exact values implementation-defined, "mirroring
// sysexits values").
const (
	ExitOSError = 71 // EX_OSERR: fork/dup2/pipe/wait failures
	ExitIOError = 74 // EX_IOERR: open/read/write failures

	// ExitCommandNotRunnable is the distinguished EXEC-failure exit code,
	// per spec.md §4.7 and §6; pinned to the POSIX "found but not
	// executable" convention (SPEC_FULL.md §9.4, Open Question OQ-2).
	ExitCommandNotRunnable = 126

	// ExitPanic is MOSHELL_PANIC from the original vm.h: the exit code
	// used when an uncaught RuntimeException reaches the outer driver.
	ExitPanic = 255
)

// ForkResult distinguishes which side of a fork a caller is on.
type ForkResult struct {
	IsChild bool
	ChildPID int
	CorrelationID string // shared between parent and child log lines, see vmlog
}

// Fork wraps the raw fork(2) syscall. Per spec.md §4.7 and §5: "each
// forked child runs an independent copy of the interpreter state from its
// own ip" — there is no in-process scheduling, the child is a genuine OS
// process continuing to execute the same Go program from right after this
// call returns.
//
// Go's runtime multiplexes goroutines onto OS threads, which makes a raw
// fork() generally unsafe once multiple threads exist; this VM's execution
// model is single-threaded and synchronous (spec.md §5), so a bare fork is
// acceptable here in the same spirit as the original C++ implementation's
// direct fork() call — this is the one place in the VM where that
// single-threadedness is load-bearing, not incidental.
func Fork() (ForkResult, error) {
	pid, _, errno := unix.RawSyscall(unix.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		return ForkResult{}, fmt.Errorf("process: fork: %w", errno)
	}
	correlation := uuid.NewString()
	if pid == 0 {
		return ForkResult{IsChild: true, CorrelationID: correlation}, nil
	}
	return ForkResult{IsChild: false, ChildPID: int(pid), CorrelationID: correlation}, nil
}

// Exec replaces the current process image, per spec.md §4.7's OP_EXEC:
// args is already in argv order, so args[0] is argv[0] and names the
// program to run. On failure the caller should exit
// with ExitCommandNotRunnable — Exec itself only returns the error so the
// caller can log it first.
func Exec(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("process: exec requires at least one argument")
	}
	path, err := lookPath(args[0])
	if err != nil {
		return err
	}
	return unix.Exec(path, args, os.Environ())
}

// lookPath resolves a bare command name against PATH, the behavior of
// execvp that plain execve lacks.
func lookPath(name string) (string, error) {
	if containsSlash(name) {
		return name, nil
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("process: %w", err)
	}
	return p, nil
}

func containsSlash(s string) bool {
	for _, c := range s {
		if c == '/' {
			return true
		}
	}
	return false
}

// Wait waits for pid to exit and returns its exit status as a byte, per
// spec.md §4.7's OP_WAIT.
func Wait(pid int) (byte, error) {
	var status unix.WaitStatus
	if _, err := unix.Wait4(pid, &status, 0, nil); err != nil {
		return 0, fmt.Errorf("process: wait4(%d): %w", pid, err)
	}
	return byte(status.ExitStatus() & 0xFF), nil
}

// Open opens path with the given flags and creation mode, per spec.md
// §4.7's OP_OPEN. mode is only consulted when flags includes O_CREAT;
// callers pass vmconfig.Config.Process.DefaultOpenMode.
func Open(path string, flags int, mode uint32) (int, error) {
	fd, err := unix.Open(path, flags, mode)
	if err != nil {
		return 0, fmt.Errorf("process: open(%q): %w", path, err)
	}
	return fd, nil
}

// Close closes fd; per SPEC_FULL.md §9.1, failure is non-fatal (unlike
// Open), matching the original's unchecked close() call for OP_CLOSE.
func Close(fd int) {
	_ = unix.Close(fd)
}

// Dup2 duplicates oldfd onto newfd, backing the unscoped OP_REDIRECT (the
// scoped SETUP_REDIRECT/POP_REDIRECT pair goes through fdtable.Table
// instead, which also dup2s but keeps a restore entry).
func Dup2(oldfd, newfd int) error {
	if err := unix.Dup2(oldfd, newfd); err != nil {
		return fmt.Errorf("process: dup2(%d, %d): %w", oldfd, newfd, err)
	}
	return nil
}

// Pipe creates a pipe and returns (readFD, writeFD), per OP_PIPE.
func Pipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, fmt.Errorf("process: pipe: %w", err)
	}
	return fds[0], fds[1], nil
}

// ReadAll drains fd to EOF and trims a single trailing newline, per OP_READ.
func ReadAll(fd int) (string, error) {
	f := os.NewFile(uintptr(fd), "vm-fd")
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("process: read(%d): %w", fd, err)
	}
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	return string(data), nil
}

// WriteAll writes all of data to fd (retrying on short writes) and closes
// fd, per OP_WRITE.
func WriteAll(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			return fmt.Errorf("process: write(%d): %w", fd, err)
		}
		data = data[n:]
	}
	return unix.Close(fd)
}
