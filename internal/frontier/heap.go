// Package frontier holds the merge frontier: the next unread record of every
// live spill file, ordered so the global minimum is always at the top.
package frontier

import "github.com/tamirms/linesort/internal/record"

// Heap is a min-heap of records ordered by record.Compare.
// Each record is paired with the index of the source it came from; the
// sources themselves live outside the heap, so the heap never owns a reader.
type Heap struct {
	recs []record.Record
	srcs []int
}

// New returns an empty heap with room for capacity sources.
func New(capacity int) *Heap {
	return &Heap{
		recs: make([]record.Record, 0, capacity),
		srcs: make([]int, 0, capacity),
	}
}

// Len returns the number of live sources.
func (h *Heap) Len() int {
	return len(h.recs)
}

// Push adds the head record of source src. O(log n).
func (h *Heap) Push(rec record.Record, src int) {
	h.recs = append(h.recs, rec)
	h.srcs = append(h.srcs, src)
	h.up(len(h.recs) - 1)
}

// Top returns the minimum record and its source without removing it.
// Must not be called on an empty heap.
func (h *Heap) Top() (record.Record, int) {
	return h.recs[0], h.srcs[0]
}

// Pop removes and returns the minimum record and its source.
func (h *Heap) Pop() (record.Record, int) {
	n := len(h.recs) - 1
	h.swap(0, n)
	h.down(0, n)
	rec, src := h.recs[n], h.srcs[n]
	h.recs[n] = record.Record{}
	h.recs = h.recs[:n]
	h.srcs = h.srcs[:n]
	return rec, src
}

// ReplaceTop replaces the minimum with the next record from the same source.
// Equivalent to Pop followed by Push with the popped source, in one sift.
func (h *Heap) ReplaceTop(rec record.Record) {
	h.recs[0] = rec
	h.down(0, len(h.recs))
}

func (h *Heap) swap(i, j int) {
	h.recs[i], h.recs[j] = h.recs[j], h.recs[i]
	h.srcs[i], h.srcs[j] = h.srcs[j], h.srcs[i]
}

func (h *Heap) less(i, j int) bool {
	if c := record.Compare(h.recs[i], h.recs[j]); c != 0 {
		return c < 0
	}
	// Deterministic tie-break by source
	return h.srcs[i] < h.srcs[j]
}

func (h *Heap) up(j int) {
	for {
		i := (j - 1) / 2 // parent
		if i == j || !h.less(j, i) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *Heap) down(i, n int) {
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1 // left child
		if j2 := j1 + 1; j2 < n && h.less(j2, j1) {
			j = j2 // right child
		}
		if !h.less(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
}
