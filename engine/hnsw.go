package engine

import (
	"container/heap"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/hupe1980/vecdex/distance"
	"github.com/hupe1980/vecdex/internal/queue"
)

const (
	// layerNormalizationBase is the base constant for the exponential layer
	// probability distribution.
	layerNormalizationBase = 1.0

	// mmax0Multiplier is the multiplier for maximum connections at layer 0.
	mmax0Multiplier = 2

	// maxGraphLevel bounds node levels read from a frame. The exponential
	// level distribution never comes close to this in a written graph.
	maxGraphLevel = 64
)

// Compile time check to ensure hnsw satisfies the Engine interface.
var _ Engine = (*hnsw)(nil)

// hnswNode holds one graph node's per-layer neighbor lists.
type hnswNode struct {
	level   int
	friends [][]uint32
}

// hnsw implements a Hierarchical Navigable Small World graph for approximate
// nearest neighbor search. L2 metric only. The owning handle serializes all
// access, so no internal locking is needed.
type hnsw struct {
	dims           int
	m              int
	efConstruction int
	efSearch       int

	maxConnectionsPerLayer int
	maxConnectionsLayer0   int
	layerMultiplier        float64

	entryPoint int
	maxLevel   int

	data  []float32
	nodes []*hnswNode

	rng *rand.Rand
}

func newHNSW(p Params) *hnsw {
	return &hnsw{
		dims:                   p.Dims,
		m:                      p.M,
		efConstruction:         p.EfConstruction,
		efSearch:               p.EfSearch,
		maxConnectionsPerLayer: p.M,
		maxConnectionsLayer0:   mmax0Multiplier * p.M,
		layerMultiplier:        layerNormalizationBase / math.Log(float64(p.M)),
		entryPoint:             -1,
		rng:                    rand.New(rand.NewSource(rand.Int63())),
	}
}

// Kind returns the engine kind.
func (h *hnsw) Kind() Kind { return KindHNSW }

// Dims returns the configured vector dimensionality.
func (h *hnsw) Dims() int { return h.dims }

// Ntotal returns the number of stored vectors.
func (h *hnsw) Ntotal() int { return len(h.nodes) }

// Trained always reports true; the graph is built incrementally.
func (h *hnsw) Trained() bool { return true }

// Train is a no-op for graph engines.
func (h *hnsw) Train(_ []float32) error { return nil }

// Add inserts the vectors in the flat buffer into the graph one by one.
func (h *hnsw) Add(vectors []float32) error {
	if len(vectors)%h.dims != 0 {
		return &ErrDimensionMismatch{Expected: h.dims, Actual: len(vectors)}
	}

	for off := 0; off < len(vectors); off += h.dims {
		h.insert(vectors[off : off+h.dims])
	}

	return nil
}

// insert adds a single vector as a new graph node.
func (h *hnsw) insert(vec []float32) {
	id := len(h.nodes)
	level := int(math.Floor(-math.Log(h.rng.Float64()) * h.layerMultiplier))

	node := &hnswNode{
		level:   level,
		friends: make([][]uint32, level+1),
	}

	h.data = append(h.data, vec...)
	h.nodes = append(h.nodes, node)

	if h.entryPoint < 0 {
		h.entryPoint = id
		h.maxLevel = level

		return
	}

	currID := h.entryPoint
	currDist := h.distTo(vec, currID)

	// Greedy descent through the layers above the new node's level.
	for l := h.maxLevel; l > level; l-- {
		currID, currDist = h.greedyStep(vec, currID, currDist, l)
	}

	// Beam search and bidirectional linking from min(level, maxLevel) down.
	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates := h.searchLayer(vec, currID, currDist, l, h.efConstruction)

		maxConns := h.maxConnectionsPerLayer
		if l == 0 {
			maxConns = h.maxConnectionsLayer0
		}

		neighbors := selectClosest(candidates, maxConns)
		node.friends[l] = neighbors

		if len(neighbors) > 0 {
			best := neighbors[0]
			currID = int(best)
			currDist = h.distTo(vec, currID)
		}

		for _, n := range neighbors {
			h.link(int(n), uint32(id), l, maxConns)
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = id
	}
}

// link adds target to node's neighbor list at the given layer, pruning back
// to maxConns by distance when the list overflows.
func (h *hnsw) link(node int, target uint32, layer, maxConns int) {
	conns := h.nodes[node].friends[layer]

	for _, c := range conns {
		if c == target {
			return
		}
	}

	conns = append(conns, target)

	if len(conns) > maxConns {
		src := h.vector(node)

		pq := queue.NewMax(len(conns))
		for _, c := range conns {
			heap.Push(pq, &queue.Item{ID: int64(c), Score: distance.SquaredL2(src, h.vector(int(c)))})
		}

		for pq.Len() > maxConns {
			heap.Pop(pq)
		}

		conns = conns[:0]
		for pq.Len() > 0 {
			item, _ := heap.Pop(pq).(*queue.Item)
			conns = append(conns, uint32(item.ID))
		}
	}

	h.nodes[node].friends[layer] = conns
}

// greedyStep walks to the closest neighbor at the given layer until no
// neighbor improves on the current distance.
func (h *hnsw) greedyStep(query []float32, currID int, currDist float32, layer int) (int, float32) {
	for {
		changed := false

		for _, next := range h.nodes[currID].friends[layer] {
			if d := h.distTo(query, int(next)); d < currDist {
				currID, currDist = int(next), d
				changed = true
			}
		}

		if !changed {
			return currID, currDist
		}
	}
}

// searchLayer runs the beam search at one layer and returns up to ef
// candidates as a max-heap (worst on top).
func (h *hnsw) searchLayer(query []float32, epID int, epDist float32, layer, ef int) *queue.PriorityQueue {
	visited := make([]bool, len(h.nodes))
	visited[epID] = true

	candidates := queue.NewMin(ef)
	heap.Push(candidates, &queue.Item{ID: int64(epID), Score: epDist})

	results := queue.NewMax(ef)
	heap.Push(results, &queue.Item{ID: int64(epID), Score: epDist})

	for candidates.Len() > 0 {
		curr, _ := heap.Pop(candidates).(*queue.Item)

		if curr.Score > results.Top().Score && results.Len() >= ef {
			break
		}

		node := int(curr.ID)
		if h.nodes[node].level < layer {
			continue
		}

		for _, next := range h.nodes[node].friends[layer] {
			if visited[next] {
				continue
			}
			visited[next] = true

			d := h.distTo(query, int(next))

			if results.Len() < ef || d < results.Top().Score {
				heap.Push(candidates, &queue.Item{ID: int64(next), Score: d})
				heap.Push(results, &queue.Item{ID: int64(next), Score: d})

				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	return results
}

// selectClosest drains a max-heap down to the m closest candidates,
// returned best first.
func selectClosest(pq *queue.PriorityQueue, m int) []uint32 {
	for pq.Len() > m {
		heap.Pop(pq)
	}

	res := make([]uint32, pq.Len())
	for i := pq.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(pq).(*queue.Item)
		res[i] = uint32(item.ID)
	}

	return res
}

// Search descends the graph and beam-searches layer 0 with
// ef = max(efSearch, k), returning exactly min(k, Ntotal) entries, best
// first. Slots the beam cannot fill (a restored graph may have unreachable
// nodes) are marked with label -1 and an infinite distance.
func (h *hnsw) Search(query []float32, k int) ([]float32, []int64, error) {
	if len(h.nodes) == 0 {
		return nil, nil, ErrEmptyIndex
	}

	if k > len(h.nodes) {
		k = len(h.nodes)
	}

	ef := h.efSearch
	if ef < k {
		ef = k
	}

	currID := h.entryPoint
	currDist := h.distTo(query, currID)

	for l := h.maxLevel; l > 0; l-- {
		currID, currDist = h.greedyStep(query, currID, currDist, l)
	}

	results := h.searchLayer(query, currID, currDist, 0, ef)

	for results.Len() > k {
		heap.Pop(results)
	}

	found := results.Len()
	scores := make([]float32, k)
	labels := make([]int64, k)

	for i := found; i < k; i++ {
		scores[i] = float32(math.Inf(1))
		labels[i] = -1
	}

	for i := found - 1; i >= 0; i-- {
		item, _ := heap.Pop(results).(*queue.Item)
		scores[i] = item.Score
		labels[i] = item.ID
	}

	return scores, labels, nil
}

// RangeSearch scans all stored vectors exactly; the graph offers no radius
// guarantee, so approximate traversal is not used here.
func (h *hnsw) RangeSearch(query []float32, radius float32) ([]float32, []int64, error) {
	var (
		scores []float32
		labels []int64
	)

	for i := 0; i < len(h.nodes); i++ {
		if d := h.distTo(query, i); d < radius {
			scores = append(scores, d)
			labels = append(labels, int64(i))
		}
	}

	return scores, labels, nil
}

// Reset removes all stored vectors and the graph.
func (h *hnsw) Reset() {
	h.data = nil
	h.nodes = nil
	h.entryPoint = -1
	h.maxLevel = 0
}

// MergeFrom appends all of other's vectors to this engine.
func (h *hnsw) MergeFrom(other Engine) error {
	return mergeInto(h, other)
}

// SetNprobe is ignored; graph engines have no partitions.
func (h *hnsw) SetNprobe(_ int) {}

// WriteTo streams the engine's self-describing byte representation.
func (h *hnsw) WriteTo(w io.Writer) (int64, error) {
	return writeEngine(w, h)
}

func (h *hnsw) rawVectors() []float32 { return h.data }

func (h *hnsw) vector(id int) []float32 {
	return h.data[id*h.dims : (id+1)*h.dims]
}

func (h *hnsw) distTo(query []float32, id int) float32 {
	return distance.SquaredL2(query, h.vector(id))
}

// Params returns the construction parameters.
func (h *hnsw) Params() Params {
	return Params{Dims: h.dims, M: h.m, EfConstruction: h.efConstruction, EfSearch: h.efSearch}
}

func (h *hnsw) writePayload(w *frameWriter) error {
	w.writeInt64(int64(len(h.nodes)))
	w.writeInt32(int32(h.entryPoint))
	w.writeInt32(int32(h.maxLevel))
	w.writeFloat32s(h.data)

	for _, node := range h.nodes {
		w.writeInt32(int32(node.level))
		for _, conns := range node.friends {
			w.writeUint32s(conns)
		}
	}

	return w.err
}

func (h *hnsw) readPayload(r *frameReader) error {
	n := r.readInt64()
	h.entryPoint = int(r.readInt32())
	h.maxLevel = int(r.readInt32())

	if r.err != nil {
		return r.err
	}

	if n < 0 || n > maxFrameElems {
		return fmt.Errorf("%w: node count %d", ErrInvalidFrame, n)
	}

	if n == 0 {
		if h.entryPoint != -1 {
			return fmt.Errorf("%w: entry point %d in empty graph", ErrInvalidFrame, h.entryPoint)
		}
	} else if h.entryPoint < 0 || int64(h.entryPoint) >= n {
		return fmt.Errorf("%w: entry point %d out of range", ErrInvalidFrame, h.entryPoint)
	}

	h.data = r.readFloat32s(int(n) * h.dims)
	if r.err != nil {
		return r.err
	}

	h.nodes = make([]*hnswNode, 0, n)
	for i := int64(0); i < n; i++ {
		level := int(r.readInt32())
		if r.err != nil {
			return r.err
		}

		if level < 0 || level > maxGraphLevel {
			return fmt.Errorf("%w: node level %d", ErrInvalidFrame, level)
		}

		node := &hnswNode{level: level, friends: make([][]uint32, level+1)}
		for l := 0; l <= level; l++ {
			node.friends[l] = r.readUint32s()
		}

		h.nodes = append(h.nodes, node)
	}

	if r.err != nil {
		return r.err
	}

	return h.validateGraph(n)
}

// validateGraph rejects decoded graphs whose links would index outside the
// node set. Traversal trusts two invariants: the entry point carries at
// least maxLevel layers, and a node listed as a neighbor at layer l has a
// level of at least l.
func (h *hnsw) validateGraph(n int64) error {
	if n == 0 {
		if h.maxLevel != 0 {
			return fmt.Errorf("%w: top level %d in empty graph", ErrInvalidFrame, h.maxLevel)
		}

		return nil
	}

	if h.maxLevel < 0 || h.maxLevel > h.nodes[h.entryPoint].level {
		return fmt.Errorf("%w: top level %d above entry point level", ErrInvalidFrame, h.maxLevel)
	}

	for _, node := range h.nodes {
		for l, conns := range node.friends {
			for _, c := range conns {
				if int64(c) >= n {
					return fmt.Errorf("%w: neighbor %d out of range", ErrInvalidFrame, c)
				}

				if h.nodes[c].level < l {
					return fmt.Errorf("%w: neighbor %d below layer %d", ErrInvalidFrame, c, l)
				}
			}
		}
	}

	return nil
}
