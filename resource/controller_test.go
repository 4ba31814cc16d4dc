package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerMemory(t *testing.T) {
	t.Run("TrackingOnly", func(t *testing.T) {
		c := NewController(Config{})

		require.NoError(t, c.AcquireMemory(context.Background(), 1024))
		assert.Equal(t, int64(1024), c.MemoryUsage())

		c.ReleaseMemory(1024)
		assert.Equal(t, int64(0), c.MemoryUsage())
	})

	t.Run("HardLimitBlocks", func(t *testing.T) {
		c := NewController(Config{MemoryLimitBytes: 100})

		require.NoError(t, c.AcquireMemory(context.Background(), 100))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := c.AcquireMemory(ctx, 1)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		c.ReleaseMemory(100)
		require.NoError(t, c.AcquireMemory(context.Background(), 1))
		c.ReleaseMemory(1)
	})
}

func TestControllerJobs(t *testing.T) {
	c := NewController(Config{MaxBackgroundJobs: 1})

	require.NoError(t, c.AcquireJob(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, c.AcquireJob(ctx), context.DeadlineExceeded)

	c.ReleaseJob()
	require.NoError(t, c.AcquireJob(context.Background()))
	c.ReleaseJob()
}

func TestControllerNil(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireMemory(context.Background(), 10))
	require.NoError(t, c.AcquireJob(context.Background()))
	require.NoError(t, c.AcquireIO(context.Background(), 10))
	c.ReleaseMemory(10)
	c.ReleaseJob()
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestThrottledWriter(t *testing.T) {
	t.Run("Unlimited", func(t *testing.T) {
		c := NewController(Config{})

		var buf bytes.Buffer
		w := c.ThrottledWriter(context.Background(), &buf)

		_, err := w.Write([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, "hello", buf.String())
	})

	t.Run("Limited", func(t *testing.T) {
		c := NewController(Config{SnapshotBytesPerSec: 1 << 20})

		var buf bytes.Buffer
		w := c.ThrottledWriter(context.Background(), &buf)

		payload := bytes.Repeat([]byte("x"), 4096)
		n, err := w.Write(payload)
		require.NoError(t, err)
		assert.Equal(t, len(payload), n)
		assert.Equal(t, len(payload), buf.Len())
	})
}

func TestThrottledReader(t *testing.T) {
	c := NewController(Config{SnapshotBytesPerSec: 1 << 20})

	src := bytes.NewReader(bytes.Repeat([]byte("y"), 4096))
	r := c.ThrottledReader(context.Background(), src)

	var dst bytes.Buffer
	n, err := dst.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), n)
}
