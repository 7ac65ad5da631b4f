package process

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestPipeWriteRead(t *testing.T) {
	r, w, err := Pipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteAll(w, []byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	out, err := ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello" {
		t.Fatalf("expected trailing newline trimmed, got %q", out)
	}
}

func TestOpenCloseTempFile(t *testing.T) {
	f, err := os.CreateTemp("", "moshvm-process-test")
	if err != nil {
		t.Fatal(err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	fd, err := Open(path, os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	Close(fd)
}

func TestForkWait(t *testing.T) {
	result, err := Fork()
	if err != nil {
		t.Fatal(err)
	}
	if result.IsChild {
		// Raw exit: a test binary turns os.Exit(0) into a panic.
		unix.Exit(0)
	}
	status, err := Wait(result.ChildPID)
	if err != nil {
		t.Fatal(err)
	}
	if status != 0 {
		t.Fatalf("expected exit status 0, got %d", status)
	}
}
