package digest

import "testing"

func TestSumIsDeterministic(t *testing.T) {
	a := New()
	a.Write([]byte("hello, "))
	a.Write([]byte("world"))

	b := New()
	b.Write([]byte("hello, world"))

	if a.Sum() != b.Sum() {
		t.Fatal("Sum() differs for the same bytes fed in different chunk sizes")
	}
}

func TestSumChangesWithInput(t *testing.T) {
	a := New()
	a.Write([]byte("foo"))

	b := New()
	b.Write([]byte("bar"))

	if a.Sum() == b.Sum() {
		t.Fatal("Sum() collided for distinct inputs")
	}
}

func TestEmptyDigestIsStable(t *testing.T) {
	a := New().Sum()
	b := New().Sum()
	if a != b {
		t.Fatal("Sum() of two fresh Running instances must match")
	}
}
