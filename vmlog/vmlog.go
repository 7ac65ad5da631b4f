// Package vmlog provides the interpreter's diagnostic logging, grounded
// on server/lsp.go's use of github.com/tliron/commonlog: a blank import
// of its "simple" backend registers a default handler, and each call site
// builds a one-off Message rather than threading a logger handle through
// the interpreter. A Message is inert until Send is called on it, so
// every helper here ends its chain with Send after setting the "message"
// key — the teacher's own single call site never exercises that, since it
// never needs the message text to carry formatted arguments.
//
// Only safe-point events are logged (GC cycles, fork/exec/wait, redirect
// scope entry/exit, fatal OS errors) — never per-opcode, so logging never
// perturbs the single-threaded, synchronous execution model of spec.md §5.
package vmlog

import (
	"fmt"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

// afterFork, once set, silences logging for the remainder of a forked
// child's lifetime: a child sharing the parent's buffered log destination
// would otherwise interleave writes with the parent's, per SPEC_FULL.md
// §9.6.
var afterFork bool

// DisableAfterFork silences all further vmlog calls. Call this from the
// child branch of FORK immediately, before any other logging-adjacent
// work runs.
func DisableAfterFork() { afterFork = true }

// GC reports one mark-sweep cycle's before/after/freed counts.
func GC(before, after, freed int) {
	if afterFork {
		return
	}
	commonlog.NewInfoMessage(1).Set("message", fmt.Sprintf("gc: scanned=%d live=%d freed=%d", before, after, freed)).Send()
}

// Fork reports a successful fork, tagging both sides with the shared
// correlation id so parent/child log lines can be joined later.
func Fork(correlationID string, childPID int, isChild bool) {
	if afterFork {
		return
	}
	if isChild {
		commonlog.NewInfoMessage(1).Set("message", fmt.Sprintf("fork[%s]: child running", correlationID)).Send()
		return
	}
	commonlog.NewInfoMessage(1).Set("message", fmt.Sprintf("fork[%s]: parent resumed, child pid=%d", correlationID, childPID)).Send()
}

// Exec reports an EXEC opcode's outcome.
func Exec(args []string, err error) {
	if afterFork {
		return
	}
	if err != nil {
		commonlog.NewErrorMessage(1).Set("message", fmt.Sprintf("exec %v failed: %v", args, err)).Send()
		return
	}
	commonlog.NewInfoMessage(1).Set("message", fmt.Sprintf("exec %v", args)).Send()
}

// RedirectScope reports entry/exit of a SETUP_REDIRECT/POP_REDIRECT pair.
func RedirectScope(entering bool, depth int) {
	if afterFork {
		return
	}
	if entering {
		commonlog.NewDebugMessage(1).Set("message", fmt.Sprintf("redirect: entering scope, depth=%d", depth)).Send()
		return
	}
	commonlog.NewDebugMessage(1).Set("message", fmt.Sprintf("redirect: leaving scope, depth=%d", depth)).Send()
}

// OSFatal reports an OS-level failure that is about to terminate the
// process with an OS-error exit code, per spec.md §7.
func OSFatal(op string, err error, exitCode byte) {
	if afterFork {
		return
	}
	commonlog.NewCriticalMessage(0).Set("message", fmt.Sprintf("%s failed: %v (exiting %d)", op, err, exitCode)).Send()
}

// RuntimeException reports an uncaught panic() RuntimeException before it
// unwinds out of the interpreter loop.
func RuntimeException(message string) {
	if afterFork {
		return
	}
	commonlog.NewErrorMessage(0).Set("message", fmt.Sprintf("panic: %s", message)).Send()
}
