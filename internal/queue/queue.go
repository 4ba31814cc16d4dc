// Package queue provides the priority queues used for top-k candidate selection.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// Item represents a candidate in the priority queue.
type Item struct {
	ID    int64   // ID is the label of the candidate.
	Score float32 // Score is the priority of the candidate in the queue.
	Index int     // Index is maintained by the heap.Interface methods.
}

// PriorityQueue implements heap.Interface and holds candidate Items.
type PriorityQueue struct {
	Desc  bool    // Desc puts the largest score on top instead of the smallest.
	Items []*Item // Items contains the elements of the priority queue.
}

// NewMin creates a min-heap with the given capacity hint.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{Items: make([]*Item, 0, capacity)}
}

// NewMax creates a max-heap with the given capacity hint.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{Desc: true, Items: make([]*Item, 0, capacity)}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	if pq.Desc {
		return pq.Items[i].Score > pq.Items[j].Score
	}
	return pq.Items[i].Score < pq.Items[j].Score
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j
}

// Push adds x to the priority queue.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*Item)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

// Pop removes and returns the top element from the priority queue.
func (pq *PriorityQueue) Pop() any {
	if len(pq.Items) == 0 {
		return nil
	}

	old := pq.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.Index = -1 // For safety
	pq.Items = old[:n-1]

	return item
}

// Top returns the top element of the priority queue without removing it.
func (pq *PriorityQueue) Top() *Item {
	return pq.Items[0]
}
