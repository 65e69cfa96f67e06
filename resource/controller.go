// Package resource provides global limits for background work.
//
// Index builds are the only heavy background activity in tablo. The
// controller bounds how many run at once across tables and can throttle
// their disk throughput so builds do not starve foreground reads.
package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxBackgroundBuilds is the maximum number of concurrent index
	// builds. If 0, defaults to 1.
	MaxBackgroundBuilds int64

	// IOLimitBytesPerSec is the maximum read throughput for build-side
	// streaming. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages global build resources.
type Controller struct {
	cfg Config

	buildSem  *semaphore.Weighted
	ioLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundBuilds <= 0 {
		cfg.MaxBackgroundBuilds = 1
	}

	c := &Controller{
		cfg:      cfg,
		buildSem: semaphore.NewWeighted(cfg.MaxBackgroundBuilds),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireBuildSlot reserves a build slot, blocking until one is free or
// ctx is canceled. A nil controller never limits.
func (c *Controller) AcquireBuildSlot(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.buildSem.Acquire(ctx, 1)
}

// TryAcquireBuildSlot reserves a build slot without blocking.
func (c *Controller) TryAcquireBuildSlot() bool {
	if c == nil {
		return true
	}
	return c.buildSem.TryAcquire(1)
}

// ReleaseBuildSlot returns a previously acquired slot.
func (c *Controller) ReleaseBuildSlot() {
	if c == nil {
		return
	}
	c.buildSem.Release(1)
}

// ThrottleIO charges n bytes against the IO limit, sleeping as needed.
// It is safe to pass to storage.Options.Throttle.
func (c *Controller) ThrottleIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil || n <= 0 {
		return nil
	}

	// WaitN cannot exceed the burst; charge oversized reads in chunks.
	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}

	return nil
}
