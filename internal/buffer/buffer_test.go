package buffer

import (
	"bytes"
	"testing"
)

func TestAppendAndBytes(t *testing.T) {
	b := New("test", 0)
	b.Append([]byte("hello"))
	b.Append([]byte(" world"))
	if got := b.Bytes(); !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("Bytes() = %q, want %q", got, "hello world")
	}
	if b.Len() != len("hello world") {
		t.Fatalf("Len() = %d, want %d", b.Len(), len("hello world"))
	}
}

func TestAppendByteGrowsPastInitialCapacity(t *testing.T) {
	b := New("test", 0)
	for i := 0; i < 1000; i++ {
		b.AppendByte(byte('a' + i%26))
	}
	if b.Len() != 1000 {
		t.Fatalf("Len() = %d, want 1000", b.Len())
	}
	if err := b.CheckOverflow(); err != nil {
		t.Fatalf("CheckOverflow: %v", err)
	}
}

func TestResetRetainsCapacity(t *testing.T) {
	b := New("test", 0)
	b.Append(bytes.Repeat([]byte("x"), 500))
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", b.Len())
	}
	b.Append([]byte("y"))
	if got := b.Bytes(); !bytes.Equal(got, []byte("y")) {
		t.Fatalf("Bytes() after reuse = %q, want %q", got, "y")
	}
}

func TestCheckOverflowDetectsCanaryCorruption(t *testing.T) {
	b := New("test", 0)
	b.Append([]byte("abc"))
	// Reach past the logical end into the planted canary region and corrupt
	// it, simulating an out-of-bounds write through a raw slice a caller held
	// onto past the buffer's logical length.
	full := b.data[:cap(b.data)]
	full[b.len] ^= 0xff
	if err := b.CheckOverflow(); err == nil {
		t.Fatal("CheckOverflow: want error after canary corruption")
	}
}

func TestArenaReleaseResetsEveryBuffer(t *testing.T) {
	a := NewArena(0)
	b1 := a.Get("one")
	b2 := a.Get("two")
	b1.Append([]byte("a"))
	b2.Append([]byte("bb"))

	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if b1.Len() != 0 || b2.Len() != 0 {
		t.Fatal("Release did not reset buffer lengths")
	}

	a.Reset(1)
	b3 := a.Get("three")
	b3.Append([]byte("ccc"))
	if err := a.Release(); err != nil {
		t.Fatalf("Release after Reset: %v", err)
	}
}

func TestArenaAdopt(t *testing.T) {
	a := NewArena(0)
	external := New("kept-across-blocks", 99)
	external.Append([]byte("z"))
	a.Adopt(external)
	if external.BlockIndex != 0 {
		t.Fatalf("Adopt did not rebind BlockIndex: got %d, want 0", external.BlockIndex)
	}
	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if external.Len() != 0 {
		t.Fatal("Release did not reset the adopted buffer")
	}
}
