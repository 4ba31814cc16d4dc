package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher(t *testing.T) {
	t.Run("RunsSubmittedWork", func(t *testing.T) {
		d := NewDispatcher(2)
		defer d.Close()

		var count atomic.Int64

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			require.NoError(t, d.Submit(context.Background(), func() {
				defer wg.Done()
				count.Add(1)
			}))
		}

		wg.Wait()
		assert.Equal(t, int64(50), count.Load())
	})

	t.Run("CloseDrainsQueue", func(t *testing.T) {
		d := NewDispatcher(1)

		var count atomic.Int64
		for i := 0; i < 10; i++ {
			require.NoError(t, d.Submit(context.Background(), func() {
				count.Add(1)
			}))
		}

		d.Close()
		assert.Equal(t, int64(10), count.Load())
	})

	t.Run("SubmitAfterClose", func(t *testing.T) {
		d := NewDispatcher(1)
		d.Close()

		err := d.Submit(context.Background(), func() {})
		assert.ErrorIs(t, err, ErrDispatcherClosed)
	})

	t.Run("CloseIsIdempotent", func(t *testing.T) {
		d := NewDispatcher(1)
		d.Close()
		d.Close()
	})

	t.Run("SubmitHonorsContext", func(t *testing.T) {
		d := NewDispatcher(1)
		defer d.Close()

		// Occupy the single worker and fill the queue.
		block := make(chan struct{})
		defer close(block)

		require.NoError(t, d.Submit(context.Background(), func() { <-block }))
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			err := d.Submit(ctx, func() { <-block })
			cancel()

			if err != nil {
				assert.ErrorIs(t, err, context.DeadlineExceeded)
				break
			}
		}
	})
}

func TestDefault(t *testing.T) {
	d1 := Default()
	d2 := Default()

	assert.Same(t, d1, d2)
	assert.Greater(t, d1.Workers(), 0)
}

func TestFuture(t *testing.T) {
	t.Run("Resolve", func(t *testing.T) {
		f := NewFuture[int]()

		go f.Resolve(42)

		v, err := f.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("Reject", func(t *testing.T) {
		sentinel := errors.New("boom")

		f := NewFuture[int]()
		f.Reject(sentinel)

		_, err := f.Wait(context.Background())
		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("FirstCompletionWins", func(t *testing.T) {
		f := NewFuture[string]()
		f.Resolve("first")
		f.Resolve("second")
		f.Reject(errors.New("late"))

		v, err := f.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "first", v)
	})

	t.Run("WaitHonorsContext", func(t *testing.T) {
		f := NewFuture[int]()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.Wait(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Pre-completed", func(t *testing.T) {
		v, err := Resolved(7).Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 7, v)

		_, err = Rejected[int](errors.New("nope")).Wait(context.Background())
		assert.Error(t, err)
	})

	t.Run("DoneChannel", func(t *testing.T) {
		f := Resolved("done")

		select {
		case <-f.Done():
		default:
			t.Fatal("expected done channel to be closed")
		}
	})
}
