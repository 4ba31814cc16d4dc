// Package resource bounds the memory, concurrency and IO footprint of
// background index work.
package resource

import (
	"context"
	"io"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for tracked vector memory.
	// If 0, usage is tracked but not enforced.
	MemoryLimitBytes int64

	// MaxBackgroundJobs is the maximum number of concurrent heavy background
	// jobs (merges, snapshots). If 0, defaults to 1.
	MaxBackgroundJobs int64

	// SnapshotBytesPerSec is the maximum IO throughput for snapshot reads and
	// writes. If 0, unlimited.
	SnapshotBytesPerSec int64
}

// Controller enforces the limits in Config. A nil *Controller is valid and
// enforces nothing.
type Controller struct {
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	jobSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a resource controller for the given limits.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundJobs <= 0 {
		cfg.MaxBackgroundJobs = 1
	}

	c := &Controller{
		jobSem: semaphore.NewWeighted(cfg.MaxBackgroundJobs),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.SnapshotBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.SnapshotBytesPerSec), int(cfg.SnapshotBytesPerSec))
	}

	return c
}

// AcquireMemory reserves tracked memory. With a hard limit configured this
// blocks until the reservation fits or ctx is cancelled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)

	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}

	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the currently tracked memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}

	return c.memUsed.Load()
}

// AcquireJob reserves a background job slot, blocking while all slots are
// busy.
func (c *Controller) AcquireJob(ctx context.Context) error {
	if c == nil {
		return nil
	}

	return c.jobSem.Acquire(ctx, 1)
}

// ReleaseJob releases a background job slot.
func (c *Controller) ReleaseJob() {
	if c == nil {
		return
	}

	c.jobSem.Release(1)
}

// AcquireIO waits until the IO limit allows the given number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}

	// WaitN cannot exceed the limiter burst; split oversized requests.
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}

		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}

		bytes -= n
	}

	return nil
}

// ThrottledWriter wraps w so that writes respect the controller's IO limit.
func (c *Controller) ThrottledWriter(ctx context.Context, w io.Writer) io.Writer {
	if c == nil || c.ioLimiter == nil {
		return w
	}

	return &throttledWriter{ctx: ctx, c: c, w: w}
}

// ThrottledReader wraps r so that reads respect the controller's IO limit.
func (c *Controller) ThrottledReader(ctx context.Context, r io.Reader) io.Reader {
	if c == nil || c.ioLimiter == nil {
		return r
	}

	return &throttledReader{ctx: ctx, c: c, r: r}
}

type throttledWriter struct {
	ctx context.Context
	c   *Controller
	w   io.Writer
}

func (tw *throttledWriter) Write(p []byte) (int, error) {
	if err := tw.c.AcquireIO(tw.ctx, len(p)); err != nil {
		return 0, err
	}

	return tw.w.Write(p)
}

type throttledReader struct {
	ctx context.Context
	c   *Controller
	r   io.Reader
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if n > 0 {
		if ioErr := tr.c.AcquireIO(tr.ctx, n); ioErr != nil {
			return n, ioErr
		}
	}

	return n, err
}
