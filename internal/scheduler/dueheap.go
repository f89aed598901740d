package scheduler

import (
	"container/heap"
	"time"

	"github.com/pocketcron/pocketcron/internal/model"
)

// dueEntry pairs a job with its computed next-fire instant. Every job has
// exactly one pending entry in the index at all times, except during the
// pop-dispatch-recompute-reinsert sequence in tick.
type dueEntry struct {
	job *model.Job
	at  time.Time
	seq int // registration order, breaks ties between simultaneous fires
}

// dueHeap implements heap.Interface ordered by (at, seq)
type dueHeap []*dueEntry

func (h dueHeap) Len() int { return len(h) }

func (h dueHeap) Less(i, j int) bool {
	if !h[i].at.Equal(h[j].at) {
		return h[i].at.Before(h[j].at)
	}
	return h[i].seq < h[j].seq
}

func (h dueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *dueHeap) Push(x interface{}) {
	*h = append(*h, x.(*dueEntry))
}

func (h *dueHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// dueIndex is the time-ordered set of pending due entries. It is owned
// exclusively by the scheduler loop goroutine and needs no locking.
type dueIndex struct {
	h dueHeap
}

func (ix *dueIndex) len() int { return len(ix.h) }

// insert adds an entry in O(log n).
func (ix *dueIndex) insert(e *dueEntry) {
	heap.Push(&ix.h, e)
}

// peekSoonest returns the earliest pending next-fire instant without
// removing it. The second return is false when the index is empty.
func (ix *dueIndex) peekSoonest() (time.Time, bool) {
	if len(ix.h) == 0 {
		return time.Time{}, false
	}
	return ix.h[0].at, true
}

// popAllDue removes and returns every entry with at <= now, ordered by
// (at, seq). Afterwards no remaining entry is due.
func (ix *dueIndex) popAllDue(now time.Time) []*dueEntry {
	var due []*dueEntry
	for len(ix.h) > 0 && !ix.h[0].at.After(now) {
		due = append(due, heap.Pop(&ix.h).(*dueEntry))
	}
	return due
}
