package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/gtcio/gtc/internal/block"
)

func TestRunPreservesOrderDespiteConcurrentProcessing(t *testing.T) {
	const n = 50
	in := make(chan *block.Block, n)
	for i := 0; i < n; i++ {
		b := block.New(int64(i))
		in <- b
	}
	close(in)

	var mu sync.Mutex
	var seen []int64

	process := func(b *block.Block) error {
		// Randomize completion order across workers to actually exercise the
		// reassembly heap rather than happening to finish in order.
		time.Sleep(time.Duration(rand.Intn(2000)) * time.Microsecond)
		return nil
	}
	ordered := func(b *block.Block) error {
		mu.Lock()
		seen = append(seen, b.Index)
		mu.Unlock()
		return nil
	}

	if err := Run(context.Background(), 8, 0, in, process, ordered); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seen) != n {
		t.Fatalf("ordered called %d times, want %d", len(seen), n)
	}
	for i, idx := range seen {
		if idx != int64(i) {
			t.Fatalf("seen[%d] = %d, want %d (ordered must fire in ascending block order)", i, idx, i)
		}
	}
}

func TestRunPropagatesProcessError(t *testing.T) {
	in := make(chan *block.Block, 3)
	for i := 0; i < 3; i++ {
		in <- block.New(int64(i))
	}
	close(in)

	wantErr := errBoom{}
	err := Run(context.Background(), 2, 0, in,
		func(b *block.Block) error {
			if b.Index == 1 {
				return wantErr
			}
			return nil
		},
		func(b *block.Block) error { return nil },
	)
	if err == nil {
		t.Fatal("Run: want error propagated from a failing Process call")
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestDefaultConcurrencyPositive(t *testing.T) {
	if DefaultConcurrency() < 1 {
		t.Fatal("DefaultConcurrency() must be at least 1")
	}
}
