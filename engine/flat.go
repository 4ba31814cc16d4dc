package engine

import (
	"container/heap"
	"fmt"
	"io"

	"github.com/hupe1980/vecdex/distance"
	"github.com/hupe1980/vecdex/internal/queue"
)

// Compile time check to ensure flat satisfies the Engine interface.
var _ Engine = (*flat)(nil)

// flat is an exact brute-force engine. Vectors are stored in a single
// contiguous buffer and every query scans all of them.
type flat struct {
	metric distance.Metric
	dims   int
	data   []float32
}

func newFlat(metric distance.Metric, p Params) *flat {
	return &flat{
		metric: metric,
		dims:   p.Dims,
	}
}

// Kind returns the engine kind.
func (f *flat) Kind() Kind {
	if f.metric == distance.MetricInnerProduct {
		return KindFlatIP
	}
	return KindFlatL2
}

// Dims returns the configured vector dimensionality.
func (f *flat) Dims() int { return f.dims }

// Ntotal returns the number of stored vectors.
func (f *flat) Ntotal() int { return len(f.data) / f.dims }

// Trained always reports true; flat engines have no training stage.
func (f *flat) Trained() bool { return true }

// Train is a no-op for flat engines.
func (f *flat) Train(_ []float32) error { return nil }

// Add appends the vectors in the flat buffer.
func (f *flat) Add(vectors []float32) error {
	if len(vectors)%f.dims != 0 {
		return &ErrDimensionMismatch{Expected: f.dims, Actual: len(vectors)}
	}

	f.data = append(f.data, vectors...)

	return nil
}

// Search scans all stored vectors and returns the min(k, Ntotal) best matches.
func (f *flat) Search(query []float32, k int) ([]float32, []int64, error) {
	n := f.Ntotal()
	if n == 0 {
		return nil, nil, ErrEmptyIndex
	}

	if k > n {
		k = n
	}

	// Keep the current worst candidate on top so it can be evicted cheaply.
	var pq *queue.PriorityQueue
	if f.metric == distance.MetricInnerProduct {
		pq = queue.NewMin(k)
	} else {
		pq = queue.NewMax(k)
	}

	for i := 0; i < n; i++ {
		vec := f.data[i*f.dims : (i+1)*f.dims]
		score := distance.Score(f.metric, query, vec)

		if pq.Len() < k {
			heap.Push(pq, &queue.Item{ID: int64(i), Score: score})
		} else if distance.Better(f.metric, score, pq.Top().Score) {
			top := pq.Top()
			top.ID, top.Score = int64(i), score
			heap.Fix(pq, 0)
		}
	}

	scores := make([]float32, k)
	labels := make([]int64, k)

	for i := k - 1; i >= 0; i-- {
		item, _ := heap.Pop(pq).(*queue.Item)
		scores[i] = item.Score
		labels[i] = item.ID
	}

	return scores, labels, nil
}

// RangeSearch returns all matches strictly better than radius.
func (f *flat) RangeSearch(query []float32, radius float32) ([]float32, []int64, error) {
	n := f.Ntotal()

	var (
		scores []float32
		labels []int64
	)

	for i := 0; i < n; i++ {
		vec := f.data[i*f.dims : (i+1)*f.dims]
		score := distance.Score(f.metric, query, vec)

		if distance.Better(f.metric, score, radius) {
			scores = append(scores, score)
			labels = append(labels, int64(i))
		}
	}

	return scores, labels, nil
}

// Reset removes all stored vectors.
func (f *flat) Reset() {
	f.data = nil
}

// MergeFrom appends all of other's vectors to this engine.
func (f *flat) MergeFrom(other Engine) error {
	return mergeInto(f, other)
}

// SetNprobe is ignored; flat engines have no partitions.
func (f *flat) SetNprobe(_ int) {}

// WriteTo streams the engine's self-describing byte representation.
func (f *flat) WriteTo(w io.Writer) (int64, error) {
	return writeEngine(w, f)
}

func (f *flat) rawVectors() []float32 { return f.data }

// Params returns the construction parameters.
func (f *flat) Params() Params {
	return Params{Dims: f.dims}
}

func (f *flat) writePayload(w *frameWriter) error {
	w.writeInt64(int64(f.Ntotal()))
	w.writeFloat32s(f.data)

	return w.err
}

func (f *flat) readPayload(r *frameReader) error {
	n := r.readInt64()
	if r.err != nil {
		return r.err
	}

	if n < 0 || n > maxFrameElems {
		return fmt.Errorf("%w: vector count %d", ErrInvalidFrame, n)
	}

	f.data = r.readFloat32s(int(n) * f.dims)

	return r.err
}
