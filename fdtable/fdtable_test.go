package fdtable

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestPushPopRestoresOriginalMapping(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	// Duplicate the current stdout destination so the test can verify
	// restoration precisely, per spec.md §8: "After SETUP_REDIRECT/.../
	// POP_REDIRECT balanced, the process fd table is bitwise identical to
	// before the setup."
	originalStdoutDup, err := unix.Dup(1)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(originalStdoutDup)

	table := New()
	if _, err := table.Push(int(w.Fd()), 1); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if table.Depth() != 1 {
		t.Fatalf("expected depth 1, got %d", table.Depth())
	}

	if _, err := unix.Write(1, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	w.Close()

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("expected redirected write to reach pipe, got %q", buf[:n])
	}

	if err := table.Pop(); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if table.Depth() != 0 {
		t.Fatalf("expected depth 0 after pop, got %d", table.Depth())
	}

	var before, after unix.Stat_t
	if err := unix.Fstat(originalStdoutDup, &before); err != nil {
		t.Fatal(err)
	}
	if err := unix.Fstat(1, &after); err != nil {
		t.Fatal(err)
	}
	if before.Dev != after.Dev || before.Ino != after.Ino {
		t.Fatalf("fd 1 was not restored to its original destination after Pop")
	}
}

func TestPopOnEmptyTableErrors(t *testing.T) {
	table := New()
	if err := table.Pop(); err == nil {
		t.Fatal("expected error popping an empty redirection table")
	}
}
