// Package fdtable implements the scoped redirection stack of spec.md §4,
// §4.7, and §5: a LIFO of saved file-descriptor duplications that
// SETUP_REDIRECT/POP_REDIRECT push and pop to temporarily reroute a
// process's I/O and then restore it exactly.
package fdtable

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Entry is one saved (source, target) redirection: before duplicating
// source onto target, the table must remember target's previous mapping
// so it can be restored.
type Entry struct {
	TargetFD    int // the fd that was overwritten, e.g. stdout (1)
	SavedFD     int // a dup of target's original destination
	RedirectedFD int // the fd that was duplicated onto TargetFD (source)
}

// Table is a process-global stack of redirection entries, per spec.md §4.3
// "FD table / redirection stack".
type Table struct {
	entries []Entry
}

// New creates an empty redirection table.
func New() *Table { return &Table{} }

// Push duplicates sourceFD onto targetFD (dup2), first saving targetFD's
// current destination so Pop can restore it. Returns sourceFD, matching
// OP_SETUP_REDIRECT's contract of leaving the source fd on the operand
// stack.
func (t *Table) Push(sourceFD, targetFD int) (int, error) {
	saved, err := unix.Dup(targetFD)
	if err != nil {
		return 0, fmt.Errorf("fdtable: dup(%d): %w", targetFD, err)
	}
	if err := unix.Dup2(sourceFD, targetFD); err != nil {
		unix.Close(saved)
		return 0, fmt.Errorf("fdtable: dup2(%d, %d): %w", sourceFD, targetFD, err)
	}
	t.entries = append(t.entries, Entry{TargetFD: targetFD, SavedFD: saved, RedirectedFD: sourceFD})
	return sourceFD, nil
}

// Pop restores the most recent entry's original mapping via another dup2,
// then closes the saved duplicate.
func (t *Table) Pop() error {
	if len(t.entries) == 0 {
		return fmt.Errorf("fdtable: pop on empty redirection stack")
	}
	e := t.entries[len(t.entries)-1]
	t.entries = t.entries[:len(t.entries)-1]

	if err := unix.Dup2(e.SavedFD, e.TargetFD); err != nil {
		return fmt.Errorf("fdtable: restoring dup2(%d, %d): %w", e.SavedFD, e.TargetFD, err)
	}
	return unix.Close(e.SavedFD)
}

// Depth reports the number of active (unrestored) redirections.
func (t *Table) Depth() int { return len(t.entries) }
