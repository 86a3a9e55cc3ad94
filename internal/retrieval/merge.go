// Package retrieval turns a query into candidate records by merging and
// intersecting posting lists. Each facet's lists are merged into
// (id, count) pairs; facets are then intersected with counts summed.
package retrieval

import (
	"container/heap"
)

// Candidate is a record id with the number of posting lists that
// contained it.
type Candidate struct {
	ID    int `json:"id"`
	Count int `json:"count"`
}

// Merge combines sorted, duplicate-free posting lists into candidates
// ordered by increasing id, where Count is the number of lists holding the
// id. It runs in O(total postings * log(len(lists))).
func Merge(lists [][]int) []Candidate {
	h := make(cursorHeap, 0, len(lists))
	total := 0
	for i, list := range lists {
		if len(list) > 0 {
			h = append(h, cursor{id: list[0], list: i})
			total += len(list)
		}
	}
	heap.Init(&h)

	pos := make([]int, len(lists))
	out := make([]Candidate, 0, total)
	for h.Len() > 0 {
		id := h[0].id
		count := 0
		for h.Len() > 0 && h[0].id == id {
			count++
			l := h[0].list
			pos[l]++
			if pos[l] < len(lists[l]) {
				h[0].id = lists[l][pos[l]]
				heap.Fix(&h, 0)
			} else {
				heap.Pop(&h)
			}
		}
		out = append(out, Candidate{ID: id, Count: count})
	}
	return out
}

// cursor is the head of one input list. Ordered by (id, list).
type cursor struct {
	id   int
	list int
}

type cursorHeap []cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	if h[i].id != h[j].id {
		return h[i].id < h[j].id
	}
	return h[i].list < h[j].list
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) {
	*h = append(*h, x.(cursor))
}

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
