// Package dispatch implements the bounded worker pool and ordered-output
// reassembly shared by compression and decode (spec §4.9 "Parallel block
// pipeline", §5 "Concurrency & Resource Model").
//
// Grounded on pbzip2's Decompressor (worker goroutines draining a work
// channel, a single assembler goroutine reordering finished blocks via a
// container/heap min-heap keyed by block index) generalized from a fixed
// decompress-only operation to an arbitrary per-block Process function
// usable for both the compress and decode directions.
package dispatch

import (
	"container/heap"
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gtcio/gtc/internal/block"
)

// Process is applied to one block by a worker goroutine; it must not touch
// any other block concurrently in flight (spec §5 "Ownership").
type Process func(*block.Block) error

// Ordered is invoked once per block, strictly in ascending Index order, by a
// single goroutine (so archive writes and digest updates never need their
// own lock, per spec §4.11 "owned by the I/O thread").
type Ordered func(*block.Block) error

// DefaultConcurrency mirrors runtime.GOMAXPROCS, matching pbzip2's default.
func DefaultConcurrency() int {
	if n := runtime.GOMAXPROCS(-1); n > 0 {
		return n
	}
	return 1
}

type item struct {
	blk *block.Block
	err error
}

type itemHeap []*item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].blk.Index < h[j].blk.Index }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(*item)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Run reads blocks from in until it is closed, applies process to each one
// across concurrency worker goroutines, and calls ordered on every block in
// ascending Index order starting at startIndex. The first error from
// process, ordered, or a cancelled ctx aborts the whole pipeline and is
// returned; blocks still waiting on in are left unread, and blocks already
// handed to workers may or may not be processed.
func Run(ctx context.Context, concurrency int, startIndex int64, in <-chan *block.Block, process Process, ordered Ordered) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}
	g, ctx := errgroup.WithContext(ctx)
	workCh := make(chan *block.Block, concurrency)
	doneCh := make(chan *item, concurrency)

	g.Go(func() error {
		defer close(workCh)
		for {
			select {
			case b, ok := <-in:
				if !ok {
					return nil
				}
				select {
				case workCh <- b:
				case <-ctx.Done():
					return ctx.Err()
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	workers := concurrency
	workerDone := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			defer func() { workerDone <- struct{}{} }()
			for {
				select {
				case b, ok := <-workCh:
					if !ok {
						return nil
					}
					err := process(b)
					select {
					case doneCh <- &item{blk: b, err: err}:
					case <-ctx.Done():
						return ctx.Err()
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}
	go func() {
		for i := 0; i < workers; i++ {
			<-workerDone
		}
		close(doneCh)
	}()

	g.Go(func() error {
		return assemble(ctx, startIndex, doneCh, ordered)
	})

	return g.Wait()
}

func assemble(ctx context.Context, startIndex int64, in <-chan *item, ordered Ordered) error {
	h := &itemHeap{}
	heap.Init(h)
	expected := startIndex
	for {
		select {
		case it, ok := <-in:
			if !ok {
				return nil
			}
			heap.Push(h, it)
			for h.Len() > 0 {
				min := (*h)[0]
				if min.blk.Index != expected {
					break
				}
				heap.Pop(h)
				expected++
				if min.err != nil {
					return min.err
				}
				if err := ordered(min.blk); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
