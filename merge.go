package vecdex

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/vecdex/dispatch"
)

// MergeFrom moves all vectors of other into this index: merged vectors get
// labels starting at the target's current Ntotal, and other is left empty
// (but open and trained). Resolves with the number of vectors moved.
//
// Both indexes stay usable during the merge; their locks are taken in
// creation order, so concurrent merges between the same pair cannot
// deadlock.
func (ix *Index) MergeFrom(other *Index) *dispatch.Future[int] {
	if err := ix.checkOpen(); err != nil {
		return dispatch.Rejected[int](err)
	}

	if other == nil || other == ix {
		return dispatch.Rejected[int](fmt.Errorf("%w: cannot merge an index with itself", ErrInvalidArgument))
	}

	if err := other.checkOpen(); err != nil {
		return dispatch.Rejected[int](err)
	}

	if other.config.Dims != ix.config.Dims {
		return dispatch.Rejected[int](&ErrDimensionMismatch{Expected: ix.config.Dims, Actual: other.config.Dims})
	}

	future := dispatch.NewFuture[int]()

	submitErr := ix.opts.dispatcher.Submit(context.Background(), func() {
		start := time.Now()

		moved, err := ix.mergeLocked(other)

		ix.logger.LogMerge(context.Background(), moved, err)
		ix.opts.metricsCollector.RecordMerge(moved, time.Since(start), err)

		if err != nil {
			future.Reject(err)
			return
		}

		future.Resolve(moved)
	})
	if submitErr != nil {
		future.Reject(submitErr)
	}

	return future
}

func (ix *Index) mergeLocked(other *Index) (int, error) {
	if err := ix.opts.controller.AcquireJob(context.Background()); err != nil {
		return 0, err
	}
	defer ix.opts.controller.ReleaseJob()

	// Lock both indexes in creation order.
	first, second := ix, other
	if second.seq < first.seq {
		first, second = second, first
	}

	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if ix.eng == nil || other.eng == nil || ix.disposed.Load() || other.disposed.Load() {
		return 0, ErrDisposed
	}

	moved := other.eng.Ntotal()

	if err := ix.eng.MergeFrom(other.eng); err != nil {
		return 0, translateError(err)
	}

	other.eng.Reset()
	other.ntotal.Store(0)
	other.trackMemory(-vectorBytes(moved, other.config.Dims))

	ix.ntotal.Store(int64(ix.eng.Ntotal()))
	ix.trackMemory(vectorBytes(moved, ix.config.Dims))

	return moved, nil
}
