package operand

import "testing"

func TestPushPopRoundTrip(t *testing.T) {
	s := New(make([]byte, 64))

	if err := s.PushInt(7); err != nil {
		t.Fatal(err)
	}
	if v, err := s.PopInt(); err != nil || v != 7 {
		t.Fatalf("got %d, %v", v, err)
	}
	if s.Size() != 0 {
		t.Fatalf("expected size 0 after balanced push/pop, got %d", s.Size())
	}

	if err := s.PushByte(1); err != nil {
		t.Fatal(err)
	}
	if v, err := s.PopByte(); err != nil || v != 1 {
		t.Fatalf("got %d, %v", v, err)
	}

	if err := s.PushDouble(3.5); err != nil {
		t.Fatal(err)
	}
	if v, err := s.PopDouble(); err != nil || v != 3.5 {
		t.Fatalf("got %v, %v", v, err)
	}

	if err := s.PushRef(0xdead); err != nil {
		t.Fatal(err)
	}
	if v, err := s.PopRef(); err != nil || v != 0xdead {
		t.Fatalf("got %x, %v", v, err)
	}
}

func TestUnderflow(t *testing.T) {
	s := New(make([]byte, 8))
	if _, err := s.PopByte(); err != ErrUnderflow {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
}

func TestOverflow(t *testing.T) {
	s := New(make([]byte, 4))
	if err := s.PushInt(1); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestRefShadowDistinguishesRefFromQWord(t *testing.T) {
	s := New(make([]byte, 16))
	if err := s.PushInt(5); err != nil {
		t.Fatal(err)
	}
	if s.IsRefAt(0) {
		t.Fatal("qword push should not be marked as a reference")
	}
	if _, err := s.PopInt(); err != nil {
		t.Fatal(err)
	}

	if err := s.PushRef(5); err != nil {
		t.Fatal(err)
	}
	if !s.IsRefAt(0) {
		t.Fatal("ref push should be marked as a reference")
	}
}

func TestPopBytesForReturnTransfer(t *testing.T) {
	s := New(make([]byte, 16))
	if err := s.PushInt(99); err != nil {
		t.Fatal(err)
	}
	blob, err := s.PopBytes(8)
	if err != nil {
		t.Fatal(err)
	}
	dest := New(make([]byte, 16))
	if err := dest.Push(blob); err != nil {
		t.Fatal(err)
	}
	v, err := dest.PopInt()
	if err != nil || v != 99 {
		t.Fatalf("got %d, %v", v, err)
	}
}
