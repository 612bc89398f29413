package search

import (
	"container/heap"
	"sort"

	"github.com/patrickwarner/esimplanner/internal/models"
)

// ranked is a kept solution with its ordering key.
type ranked struct {
	cost     float64
	seq      int64
	solution models.Solution
}

func less(a, b ranked) bool {
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	return a.seq < b.seq
}

// worstFirst is a max-heap on (cost, seq): the root is the worst kept entry.
type worstFirst []ranked

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return less(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(ranked)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topN keeps the n best entries seen. It has a single writer.
type topN struct {
	n int
	h worstFirst
}

func newTopN(n int) *topN {
	if n < 1 {
		n = 1
	}
	return &topN{n: n, h: make(worstFirst, 0, n)}
}

// admits reports whether an entry with this key would be kept.
func (t *topN) admits(cost float64, seq int64) bool {
	if len(t.h) < t.n {
		return true
	}
	return less(ranked{cost: cost, seq: seq}, t.h[0])
}

// offer keeps r when there is room or when it beats the current worst.
func (t *topN) offer(r ranked) bool {
	if len(t.h) < t.n {
		heap.Push(&t.h, r)
		return true
	}
	if !less(r, t.h[0]) {
		return false
	}
	t.h[0] = r
	heap.Fix(&t.h, 0)
	return true
}

// sorted returns the kept solutions, best first.
func (t *topN) sorted() []models.Solution {
	entries := append([]ranked(nil), t.h...)
	sort.Slice(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	out := make([]models.Solution, len(entries))
	for i, e := range entries {
		out[i] = e.solution
	}
	return out
}
