package back

import (
	"nikand.dev/go/heap"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
)

// compoundQueue gives FIFO processing order to compounds through a
// binary heap keyed by insertion sequence, the same shape as
// compiler/back's older job-scheduling queue: a heap.Heap gives O(log n)
// push/pop while Less enforces first-in-first-out rather than
// priority order.
type compoundQueue struct {
	heap.Heap[*LiveCompound]
	next int
}

func newCompoundQueue() *compoundQueue {
	q := &compoundQueue{}
	q.Less = func(d []*LiveCompound, i, j int) bool { return d[i].seq < d[j].seq }

	return q
}

func (q *compoundQueue) Push(c *LiveCompound) {
	c.seq = q.next
	q.next++

	tlog.V("regalloc_queue").Printw("compound queued", "seq", c.seq, "restricted", c.Restricted(), "from", loc.Caller(1))

	q.Heap.Push(c)
}

func (q *compoundQueue) Pop() *LiveCompound {
	return q.Heap.Pop()
}
