package queue

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinQueue(t *testing.T) {
	pq := NewMin(4)

	heap.Push(pq, &Item{ID: 1, Score: 3.0})
	heap.Push(pq, &Item{ID: 2, Score: 1.0})
	heap.Push(pq, &Item{ID: 3, Score: 2.0})

	assert.Equal(t, int64(2), pq.Top().ID)

	item, _ := heap.Pop(pq).(*Item)
	assert.Equal(t, float32(1.0), item.Score)

	item, _ = heap.Pop(pq).(*Item)
	assert.Equal(t, float32(2.0), item.Score)

	item, _ = heap.Pop(pq).(*Item)
	assert.Equal(t, float32(3.0), item.Score)

	assert.Equal(t, 0, pq.Len())
}

func TestMaxQueue(t *testing.T) {
	pq := NewMax(4)

	heap.Push(pq, &Item{ID: 1, Score: 3.0})
	heap.Push(pq, &Item{ID: 2, Score: 1.0})
	heap.Push(pq, &Item{ID: 3, Score: 2.0})

	assert.Equal(t, int64(1), pq.Top().ID)

	item, _ := heap.Pop(pq).(*Item)
	assert.Equal(t, float32(3.0), item.Score)
}

func TestPopEmpty(t *testing.T) {
	pq := NewMin(0)
	assert.Nil(t, pq.Pop())
}
