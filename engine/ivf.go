package engine

import (
	"container/heap"
	"fmt"
	"io"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecdex/distance"
	"github.com/hupe1980/vecdex/internal/kmeans"
	"github.com/hupe1980/vecdex/internal/queue"
)

// trainIterations bounds the Lloyd's iterations of the coarse quantizer.
const trainIterations = 25

// Compile time check to ensure ivfFlat satisfies the Engine interface.
var _ Engine = (*ivfFlat)(nil)

// ivfFlat partitions the vector space with a k-means coarse quantizer and
// keeps one inverted list per partition. Queries only scan the vectors of the
// nprobe closest partitions. L2 metric only.
type ivfFlat struct {
	dims   int
	nlist  int
	nprobe int

	trained   bool
	centroids []float32
	lists     []*roaring.Bitmap
	data      []float32
}

func newIVFFlat(p Params) *ivfFlat {
	return &ivfFlat{
		dims:   p.Dims,
		nlist:  p.Nlist,
		nprobe: p.Nprobe,
	}
}

// Kind returns the engine kind.
func (e *ivfFlat) Kind() Kind { return KindIVFFlat }

// Dims returns the configured vector dimensionality.
func (e *ivfFlat) Dims() int { return e.dims }

// Ntotal returns the number of stored vectors.
func (e *ivfFlat) Ntotal() int { return len(e.data) / e.dims }

// Trained reports whether the coarse quantizer has been trained.
func (e *ivfFlat) Trained() bool { return e.trained }

// Train fits the coarse quantizer on the given training vectors.
// Requires at least nlist training vectors. Vectors already stored in the
// engine are reassigned to the new partitions.
func (e *ivfFlat) Train(vectors []float32) error {
	if len(vectors)%e.dims != 0 {
		return &ErrDimensionMismatch{Expected: e.dims, Actual: len(vectors)}
	}

	n := len(vectors) / e.dims
	if n < e.nlist {
		return &ErrInsufficientTraining{Need: e.nlist, Got: n}
	}

	e.centroids = kmeans.Train(vectors, e.dims, e.nlist, trainIterations)
	e.trained = true

	e.rebuildLists()

	return nil
}

// Add appends the vectors in the flat buffer, routing each one to its
// closest partition.
func (e *ivfFlat) Add(vectors []float32) error {
	if !e.trained {
		return ErrNotTrained
	}

	if len(vectors)%e.dims != 0 {
		return &ErrDimensionMismatch{Expected: e.dims, Actual: len(vectors)}
	}

	label := e.Ntotal()

	for off := 0; off < len(vectors); off += e.dims {
		vec := vectors[off : off+e.dims]
		cluster := kmeans.Assign(vec, e.centroids, e.dims)
		e.lists[cluster].Add(uint32(label))
		label++
	}

	e.data = append(e.data, vectors...)

	return nil
}

// Search scans the nprobe closest partitions and returns exactly
// min(k, Ntotal) entries, best first. Slots the probed partitions cannot
// fill are marked with label -1 and an infinite distance.
func (e *ivfFlat) Search(query []float32, k int) ([]float32, []int64, error) {
	if !e.trained {
		return nil, nil, ErrNotTrained
	}

	total := e.Ntotal()
	if total == 0 {
		return nil, nil, ErrEmptyIndex
	}

	if k > total {
		k = total
	}

	// Worst candidate on top for cheap eviction.
	pq := queue.NewMax(k)

	e.scanProbed(query, func(label uint32, dist float32) {
		if pq.Len() < k {
			heap.Push(pq, &queue.Item{ID: int64(label), Score: dist})
		} else if dist < pq.Top().Score {
			top := pq.Top()
			top.ID, top.Score = int64(label), dist
			heap.Fix(pq, 0)
		}
	})

	found := pq.Len()
	scores := make([]float32, k)
	labels := make([]int64, k)

	for i := found; i < k; i++ {
		scores[i] = float32(math.Inf(1))
		labels[i] = -1
	}

	for i := found - 1; i >= 0; i-- {
		item, _ := heap.Pop(pq).(*queue.Item)
		scores[i] = item.Score
		labels[i] = item.ID
	}

	return scores, labels, nil
}

// RangeSearch scans the nprobe closest partitions and returns all matches
// with squared L2 distance strictly below radius.
func (e *ivfFlat) RangeSearch(query []float32, radius float32) ([]float32, []int64, error) {
	if !e.trained {
		return nil, nil, ErrNotTrained
	}

	var (
		scores []float32
		labels []int64
	)

	e.scanProbed(query, func(label uint32, dist float32) {
		if dist < radius {
			scores = append(scores, dist)
			labels = append(labels, int64(label))
		}
	})

	return scores, labels, nil
}

// scanProbed visits every vector in the nprobe partitions closest to query.
func (e *ivfFlat) scanProbed(query []float32, visit func(label uint32, dist float32)) {
	probe := e.nprobe
	if probe < 1 {
		probe = 1
	}

	for _, cluster := range kmeans.Nearest(query, e.centroids, e.dims, probe) {
		it := e.lists[cluster].Iterator()
		for it.HasNext() {
			label := it.Next()
			vec := e.data[int(label)*e.dims : (int(label)+1)*e.dims]
			visit(label, distance.SquaredL2(query, vec))
		}
	}
}

// Reset removes all stored vectors. The coarse quantizer is preserved.
func (e *ivfFlat) Reset() {
	e.data = nil

	if e.trained {
		e.rebuildLists()
	}
}

// MergeFrom appends all of other's vectors to this engine.
func (e *ivfFlat) MergeFrom(other Engine) error {
	return mergeInto(e, other)
}

// SetNprobe adjusts the number of partitions probed per search.
func (e *ivfFlat) SetNprobe(n int) {
	if n > 0 {
		if n > e.nlist {
			n = e.nlist
		}
		e.nprobe = n
	}
}

// WriteTo streams the engine's self-describing byte representation.
func (e *ivfFlat) WriteTo(w io.Writer) (int64, error) {
	return writeEngine(w, e)
}

func (e *ivfFlat) rawVectors() []float32 { return e.data }

// rebuildLists reassigns every stored vector to its closest partition.
func (e *ivfFlat) rebuildLists() {
	e.lists = make([]*roaring.Bitmap, e.nlist)
	for i := range e.lists {
		e.lists[i] = roaring.New()
	}

	for label := 0; label < e.Ntotal(); label++ {
		vec := e.data[label*e.dims : (label+1)*e.dims]
		e.lists[kmeans.Assign(vec, e.centroids, e.dims)].Add(uint32(label))
	}
}

// Params returns the construction parameters.
func (e *ivfFlat) Params() Params {
	return Params{Dims: e.dims, Nlist: e.nlist, Nprobe: e.nprobe}
}

func (e *ivfFlat) writePayload(w *frameWriter) error {
	if e.trained {
		w.writeUint8(1)
	} else {
		w.writeUint8(0)
	}

	if !e.trained {
		return w.err
	}

	w.writeFloat32s(e.centroids)
	w.writeInt64(int64(e.Ntotal()))
	w.writeFloat32s(e.data)

	for _, list := range e.lists {
		buf, err := list.ToBytes()
		if err != nil {
			return err
		}
		w.writeBytes(buf)
	}

	return w.err
}

func (e *ivfFlat) readPayload(r *frameReader) error {
	trained := r.readUint8()
	if r.err != nil || trained == 0 {
		return r.err
	}

	e.trained = true
	e.centroids = r.readFloat32s(e.nlist * e.dims)

	n := r.readInt64()
	if r.err != nil {
		return r.err
	}

	if n < 0 || n > maxFrameElems {
		return fmt.Errorf("%w: vector count %d", ErrInvalidFrame, n)
	}

	e.data = r.readFloat32s(int(n) * e.dims)
	if r.err != nil {
		return r.err
	}

	e.lists = make([]*roaring.Bitmap, e.nlist)
	for i := range e.lists {
		buf := r.readBytes()
		if r.err != nil {
			return r.err
		}

		e.lists[i] = roaring.New()
		if err := e.lists[i].UnmarshalBinary(buf); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}

		// Scans index the data buffer by list entry.
		if !e.lists[i].IsEmpty() && int64(e.lists[i].Maximum()) >= n {
			return fmt.Errorf("%w: list entry %d out of range", ErrInvalidFrame, e.lists[i].Maximum())
		}
	}

	return r.err
}
