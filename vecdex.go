// Package vecdex wraps embeddable vector index engines behind a disposable,
// thread-safe handle with asynchronous operations.
//
// Heavy operations (train, add, search, merge, snapshot) run on a shared
// worker pool and return futures; cheap operations (stats, nprobe, reset)
// are synchronous. Argument validation always happens synchronously at the
// call boundary, so a malformed call is rejected before any work is queued.
package vecdex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecdex/dispatch"
	"github.com/hupe1980/vecdex/distance"
	"github.com/hupe1980/vecdex/engine"
)

// indexSeq hands out creation sequence numbers. Merge uses them as the lock
// acquisition order between two indexes.
var indexSeq atomic.Uint64

// Index is a handle to one vector index. All methods are safe for concurrent
// use; operations on the underlying engine are serialized by an internal
// lock, in submission order per worker.
type Index struct {
	seq    uint64
	config Config
	metric distance.Metric

	mu  sync.Mutex
	eng engine.Engine

	disposed atomic.Bool
	trained  atomic.Bool
	ntotal   atomic.Int64
	nprobe   atomic.Int64

	opts   options
	logger *Logger
}

// New creates an index for the given configuration.
func New(cfg Config, optFns ...Option) (*Index, error) {
	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eng, err := engine.New(cfg.Type.engineKind(), cfg.engineParams())
	if err != nil {
		return nil, translateError(err)
	}

	return newIndex(cfg, eng, applyOptions(optFns)), nil
}

func newIndex(cfg Config, eng engine.Engine, o options) *Index {
	ix := &Index{
		seq:    indexSeq.Add(1),
		config: cfg,
		metric: cfg.Type.Metric(),
		eng:    eng,
		opts:   o,
	}

	ix.logger = o.logger.WithIndex(ix.seq, cfg.Type, cfg.Dims)
	ix.trained.Store(eng.Trained())
	ix.ntotal.Store(int64(eng.Ntotal()))
	ix.nprobe.Store(int64(cfg.Nprobe))

	ix.trackMemory(vectorBytes(eng.Ntotal(), cfg.Dims))

	return ix
}

// Dims returns the configured vector dimensionality.
func (ix *Index) Dims() int { return ix.config.Dims }

// Type returns the configured index type.
func (ix *Index) Type() IndexType { return ix.config.Type }

// Ntotal returns the current number of stored vectors.
func (ix *Index) Ntotal() int64 { return ix.ntotal.Load() }

// IsTrained reports whether the index accepts vectors.
func (ix *Index) IsTrained() bool { return ix.trained.Load() }

// Stats is a point-in-time view of the index.
type Stats struct {
	Ntotal  int64
	Dims    int
	Type    IndexType
	Trained bool
	Nprobe  int
}

// Stats returns a point-in-time view of the index without waiting for
// in-flight operations.
func (ix *Index) Stats() (Stats, error) {
	if err := ix.checkOpen(); err != nil {
		return Stats{}, err
	}

	return Stats{
		Ntotal:  ix.ntotal.Load(),
		Dims:    ix.config.Dims,
		Type:    ix.config.Type,
		Trained: ix.trained.Load(),
		Nprobe:  int(ix.nprobe.Load()),
	}, nil
}

// Train fits the index on the given flat buffer of training vectors.
// Index types without a training stage resolve immediately as a no-op.
func (ix *Index) Train(vectors []float32) *dispatch.Future[struct{}] {
	if err := ix.checkOpen(); err != nil {
		return dispatch.Rejected[struct{}](err)
	}

	count, err := ix.checkBuffer(vectors)
	if err != nil {
		return dispatch.Rejected[struct{}](err)
	}

	return run(ix, func(eng engine.Engine) (struct{}, error) {
		start := time.Now()

		err := eng.Train(vectors)
		ix.trained.Store(eng.Trained())

		ix.logger.LogTrain(context.Background(), count, err)
		ix.opts.metricsCollector.RecordTrain(count, time.Since(start), err)

		return struct{}{}, err
	})
}

// Add appends the vectors in the flat buffer, assigning sequential labels
// starting at the current Ntotal. Resolves with the number of vectors added.
func (ix *Index) Add(vectors []float32) *dispatch.Future[int] {
	if err := ix.checkOpen(); err != nil {
		return dispatch.Rejected[int](err)
	}

	count, err := ix.checkBuffer(vectors)
	if err != nil {
		return dispatch.Rejected[int](err)
	}

	return run(ix, func(eng engine.Engine) (int, error) {
		start := time.Now()

		err := eng.Add(vectors)
		if err == nil {
			ix.ntotal.Store(int64(eng.Ntotal()))
			ix.trackMemory(vectorBytes(count, ix.config.Dims))
		}

		ix.logger.LogAdd(context.Background(), count, ix.ntotal.Load(), err)
		ix.opts.metricsCollector.RecordAdd(count, time.Since(start), err)

		return count, err
	})
}

// SearchResult holds the matches of a single query, best first.
type SearchResult struct {
	// Distances are the match scores: squared L2 (ascending) or inner
	// product (descending), depending on the index type.
	Distances []float32
	// Labels are the matching vector labels.
	Labels []int64
}

// Search finds the k best matches for a single query vector. k is clamped
// to the number of stored vectors; searching an empty index is rejected.
func (ix *Index) Search(query []float32, k int) *dispatch.Future[SearchResult] {
	if err := ix.checkSearchArgs(query, k); err != nil {
		return dispatch.Rejected[SearchResult](err)
	}

	return run(ix, func(eng engine.Engine) (SearchResult, error) {
		start := time.Now()

		distances, labels, err := eng.Search(query, k)

		ix.logger.LogSearch(context.Background(), 1, k, len(labels), err)
		ix.opts.metricsCollector.RecordSearch(1, k, time.Since(start), err)

		if err != nil {
			return SearchResult{}, err
		}

		return SearchResult{Distances: distances, Labels: labels}, nil
	})
}

// BatchSearchResult holds the matches of several queries in one flat layout:
// query i occupies Distances[i*K:(i+1)*K] and Labels likewise.
type BatchSearchResult struct {
	Distances []float32
	Labels    []int64
	// K is the per-query result stride, min(requested k, Ntotal at
	// execution time).
	K int
	// Queries is the number of query vectors.
	Queries int
}

// SearchBatch finds the k best matches for each query in the flat buffer.
func (ix *Index) SearchBatch(queries []float32, k int) *dispatch.Future[BatchSearchResult] {
	if err := ix.checkOpen(); err != nil {
		return dispatch.Rejected[BatchSearchResult](err)
	}

	if k <= 0 {
		return dispatch.Rejected[BatchSearchResult](ErrInvalidK)
	}

	n, err := ix.checkBuffer(queries)
	if err != nil {
		return dispatch.Rejected[BatchSearchResult](err)
	}

	if ix.ntotal.Load() == 0 {
		return dispatch.Rejected[BatchSearchResult](ErrEmptyIndex)
	}

	return run(ix, func(eng engine.Engine) (BatchSearchResult, error) {
		start := time.Now()

		result, err := searchBatch(eng, queries, ix.config.Dims, n, k)

		ix.logger.LogSearch(context.Background(), n, k, len(result.Labels), err)
		ix.opts.metricsCollector.RecordSearch(n, k, time.Since(start), err)

		return result, err
	})
}

func searchBatch(eng engine.Engine, queries []float32, dims, n, k int) (BatchSearchResult, error) {
	if eng.Ntotal() == 0 {
		return BatchSearchResult{}, engine.ErrEmptyIndex
	}

	// Ntotal is fixed while the index lock is held, so every query shares
	// the same effective stride.
	stride := k
	if total := eng.Ntotal(); stride > total {
		stride = total
	}

	result := BatchSearchResult{
		Distances: make([]float32, 0, n*stride),
		Labels:    make([]int64, 0, n*stride),
		K:         stride,
		Queries:   n,
	}

	for i := 0; i < n; i++ {
		query := queries[i*dims : (i+1)*dims]

		distances, labels, err := eng.Search(query, stride)
		if err != nil {
			return BatchSearchResult{}, err
		}

		result.Distances = append(result.Distances, distances...)
		result.Labels = append(result.Labels, labels...)
	}

	return result, nil
}

// RangeSearchResult holds all matches within a radius for a single query.
// Ordering within the result is unspecified.
type RangeSearchResult struct {
	Distances []float32
	Labels    []int64
	// Lims delimits the result segment, [0, len(Labels)], mirroring the
	// multi-query layout of batch range searches.
	Lims [2]int64
}

// RangeSearch finds all matches within radius of the query. For L2 indexes
// a match has distance strictly below radius; for inner-product indexes a
// score strictly above it.
func (ix *Index) RangeSearch(query []float32, radius float32) *dispatch.Future[RangeSearchResult] {
	if err := ix.checkOpen(); err != nil {
		return dispatch.Rejected[RangeSearchResult](err)
	}

	if err := ix.checkQuery(query); err != nil {
		return dispatch.Rejected[RangeSearchResult](err)
	}

	// An inner-product threshold may legitimately be negative.
	if ix.metric == distance.MetricL2 && radius < 0 {
		return dispatch.Rejected[RangeSearchResult](
			fmt.Errorf("%w: radius must not be negative, got %g", ErrInvalidArgument, radius))
	}

	if ix.ntotal.Load() == 0 {
		return dispatch.Rejected[RangeSearchResult](ErrEmptyIndex)
	}

	return run(ix, func(eng engine.Engine) (RangeSearchResult, error) {
		start := time.Now()

		result, err := rangeSearch(eng, query, radius)

		ix.logger.LogSearch(context.Background(), 1, 0, len(result.Labels), err)
		ix.opts.metricsCollector.RecordSearch(1, 0, time.Since(start), err)

		return result, err
	})
}

func rangeSearch(eng engine.Engine, query []float32, radius float32) (RangeSearchResult, error) {
	if eng.Ntotal() == 0 {
		return RangeSearchResult{}, engine.ErrEmptyIndex
	}

	distances, labels, err := eng.RangeSearch(query, radius)
	if err != nil {
		return RangeSearchResult{}, err
	}

	return RangeSearchResult{
		Distances: distances,
		Labels:    labels,
		Lims:      [2]int64{0, int64(len(labels))},
	}, nil
}

// Reset removes all stored vectors. Training state is preserved, so an IVF
// index accepts new vectors without re-training. Blocks until in-flight
// operations release the index.
func (ix *Index) Reset() error {
	if err := ix.checkOpen(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.eng == nil {
		return ErrDisposed
	}

	ix.eng.Reset()
	removed := ix.ntotal.Swap(0)
	ix.trackMemory(-vectorBytes(int(removed), ix.config.Dims))

	return nil
}

// SetNprobe adjusts the number of IVF partitions probed per search. n must
// be positive; index types without partitions accept and ignore the value.
func (ix *Index) SetNprobe(n int) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}

	if n <= 0 {
		return fmt.Errorf("%w: nprobe must be positive, got %d", ErrInvalidArgument, n)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.eng == nil {
		return ErrDisposed
	}

	ix.eng.SetNprobe(n)

	if ix.config.Type == IndexTypeIVFFlat {
		if n > ix.config.Nlist {
			n = ix.config.Nlist
		}
		ix.nprobe.Store(int64(n))
	}

	return nil
}

// Dispose releases the index. The call returns immediately: the handle is
// marked disposed synchronously and rejects all further operations, while
// the engine itself is released in the background once in-flight operations
// have drained. Dispose is idempotent.
func (ix *Index) Dispose() {
	if !ix.disposed.CompareAndSwap(false, true) {
		return
	}

	go func() {
		ix.mu.Lock()
		defer ix.mu.Unlock()

		if ix.eng == nil {
			return
		}

		ix.trackMemory(-vectorBytes(ix.eng.Ntotal(), ix.config.Dims))
		ix.eng = nil

		ix.logger.LogDispose(context.Background())
	}()
}

// Close disposes the index. It implements io.Closer and never returns an
// error.
func (ix *Index) Close() error {
	ix.Dispose()

	return nil
}

// IsDisposed reports whether Dispose has been called.
func (ix *Index) IsDisposed() bool {
	return ix.disposed.Load()
}

func (ix *Index) checkOpen() error {
	if ix.disposed.Load() {
		return ErrDisposed
	}

	return nil
}

// checkBuffer validates a flat vector buffer and returns the vector count.
func (ix *Index) checkBuffer(vectors []float32) (int, error) {
	if len(vectors) == 0 {
		return 0, fmt.Errorf("%w: vectors must not be empty", ErrInvalidArgument)
	}

	if len(vectors)%ix.config.Dims != 0 {
		return 0, &ErrDimensionMismatch{Expected: ix.config.Dims, Actual: len(vectors)}
	}

	return len(vectors) / ix.config.Dims, nil
}

// checkQuery validates a single query vector.
func (ix *Index) checkQuery(query []float32) error {
	if len(query) != ix.config.Dims {
		return &ErrDimensionMismatch{Expected: ix.config.Dims, Actual: len(query)}
	}

	return nil
}

func (ix *Index) checkSearchArgs(query []float32, k int) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}

	if err := ix.checkQuery(query); err != nil {
		return err
	}

	if k <= 0 {
		return ErrInvalidK
	}

	// A search on an empty index is doomed; reject it before dispatch. The
	// cached counter may be stale, so the engine check under the lock stays
	// authoritative.
	if ix.ntotal.Load() == 0 {
		return ErrEmptyIndex
	}

	return nil
}

// trackMemory adjusts the resource controller's view of the vector memory
// held by this index. delta may be negative.
func (ix *Index) trackMemory(delta int64) {
	if delta > 0 {
		// With a hard limit configured this blocks the worker, applying
		// backpressure to adds until memory is released.
		_ = ix.opts.controller.AcquireMemory(context.Background(), delta)
	} else if delta < 0 {
		ix.opts.controller.ReleaseMemory(-delta)
	}
}

func vectorBytes(count, dims int) int64 {
	return int64(count) * int64(dims) * 4
}

// run submits op to the index's dispatcher and exposes its outcome as a
// future. Engine access happens under the index lock; a disposed engine
// rejects with ErrDisposed.
func run[T any](ix *Index, op func(eng engine.Engine) (T, error)) *dispatch.Future[T] {
	future := dispatch.NewFuture[T]()

	submitErr := ix.opts.dispatcher.Submit(context.Background(), func() {
		ix.mu.Lock()
		defer ix.mu.Unlock()

		if ix.eng == nil || ix.disposed.Load() {
			future.Reject(ErrDisposed)
			return
		}

		val, err := op(ix.eng)
		if err != nil {
			future.Reject(translateError(err))
			return
		}

		future.Resolve(val)
	})
	if submitErr != nil {
		future.Reject(submitErr)
	}

	return future
}
