package block

import "testing"

func TestPoolGetAssignsIncreasingIndices(t *testing.T) {
	p := NewPool()
	b0 := p.Get()
	b1 := p.Get()
	if b0.Index != 0 || b1.Index != 1 {
		t.Fatalf("Get() indices = %d, %d, want 0, 1", b0.Index, b1.Index)
	}
	if !b0.InUse || !b1.InUse {
		t.Fatal("Get() did not mark blocks InUse")
	}
}

func TestPoolPutRecyclesBlock(t *testing.T) {
	p := NewPool()
	b := p.Get()
	b.Text = append(b.Text, []byte("leftover")...)
	p.Put(b)
	if b.InUse {
		t.Fatal("Put() did not clear InUse")
	}

	reused := p.Get()
	if reused != b {
		t.Fatal("Get() after Put() did not recycle the returned block")
	}
	if len(reused.Text) != 0 {
		t.Fatalf("recycled block Text = %v, want empty after Reset", reused.Text)
	}
	if reused.Index != 1 {
		t.Fatalf("recycled block Index = %d, want 1 (pool counter keeps advancing)", reused.Index)
	}
}
