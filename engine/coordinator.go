// Package engine provides the per-table coordination layer for index
// builds.
//
// All build and rebuild requests for a table go through a Coordinator. It
// owns the build state machine
//
//	idle → building → {ready | failed}
//	ready → building   (rebuild)
//	failed → building  (retry)
//
// and guarantees at most one build in flight per table: a request that
// arrives while a build is running is rejected with ErrBuildInProgress,
// never queued. The coordinator is also the authority behind the
// externally polled "is indexing in progress" signal; a status read is a
// single atomic load that always reflects the most recently completed
// transition.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/tablo/index"
	"github.com/hupe1980/tablo/resource"
)

// Coordinator serializes and observes index builds for one table. It is
// long-lived: one coordinator serves the table for the whole process
// lifetime.
type Coordinator struct {
	idx index.Engine
	res *resource.Controller
	log *slog.Logger

	state atomic.Int32 // index.State

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	lastSummary *index.BuildSummary
	lastErr     error
}

// Options configures a Coordinator.
type Options struct {
	// Resources bounds concurrent builds across tables. Nil means
	// unlimited (beyond the per-table serialization).
	Resources *resource.Controller

	// Logger receives build lifecycle events. Defaults to a disabled
	// logger.
	Logger *slog.Logger
}

// NewCoordinator creates a coordinator over an index engine. When the
// engine already holds a loaded index (artifact restore), the coordinator
// starts in the ready state.
func NewCoordinator(idx index.Engine, optFns ...func(*Options)) *Coordinator {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	c := &Coordinator{
		idx: idx,
		res: opts.Resources,
		log: opts.Logger,
	}

	if idx.Status() == index.StateReady {
		c.state.Store(int32(index.StateReady))
	} else {
		c.state.Store(int32(index.StateIdle))
	}

	return c
}

// Status returns the current build state. The read is side-effect-free
// and never observes a state older than the last completed transition.
func (c *Coordinator) Status() index.State {
	return index.State(c.state.Load())
}

// Indexing reports the two-valued signal external pollers consume:
// whether a build is currently in progress.
func (c *Coordinator) Indexing() bool {
	return c.Status().Indexing()
}

// Refresh re-syncs the coordinator with the engine's state after an
// out-of-band index change, such as an artifact restore. An in-flight
// build keeps ownership of the state machine; Refresh is then a no-op.
func (c *Coordinator) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index.State(c.state.Load()) == index.StateBuilding {
		return
	}
	c.state.Store(int32(c.idx.Status()))
}

// Build runs a build synchronously. It fails with ErrBuildInProgress when
// another build is already running on this table.
func (c *Coordinator) Build(ctx context.Context, cfg index.BuildConfig) (*index.BuildSummary, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	return c.run(ctx, cfg)
}

// Trigger starts a build in the background and returns immediately. The
// outcome is observable through Status, Wait and Last.
func (c *Coordinator) Trigger(ctx context.Context, cfg index.BuildConfig) error {
	if err := c.begin(); err != nil {
		return err
	}

	go func() {
		_, _ = c.run(ctx, cfg)
	}()

	return nil
}

// Cancel aborts the in-flight build, if any. The build settles in the
// failed state with ErrCancelled.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the in-flight build (if any) settles and returns its
// outcome. Without an in-flight build it returns the last outcome.
func (c *Coordinator) Wait() (*index.BuildSummary, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	return c.Last()
}

// Last returns the outcome of the most recently settled build.
func (c *Coordinator) Last() (*index.BuildSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSummary, c.lastErr
}

// begin performs the *→building transition, rejecting concurrent builds.
func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index.State(c.state.Load()) == index.StateBuilding {
		return index.ErrBuildInProgress
	}

	c.state.Store(int32(index.StateBuilding))
	c.done = make(chan struct{})

	return nil
}

func (c *Coordinator) run(ctx context.Context, cfg index.BuildConfig) (*index.BuildSummary, error) {
	c.log.Debug("index build started")

	buildCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	summary, err := c.runLimited(buildCtx, cfg)

	c.mu.Lock()
	c.cancel = nil
	c.lastSummary = summary
	c.lastErr = err
	if err != nil {
		c.state.Store(int32(index.StateFailed))
	} else {
		c.state.Store(int32(index.StateReady))
	}
	close(c.done)
	c.done = nil
	c.mu.Unlock()

	cancel()

	if err != nil {
		if errors.Is(err, index.ErrCancelled) {
			c.log.Warn("index build cancelled")
		} else {
			c.log.Error("index build failed", "error", err)
		}
		return nil, err
	}

	c.log.Info("index build completed",
		"rows", summary.Rows,
		"included", summary.Included,
		"excluded", summary.Excluded,
		"skipped", summary.Skipped,
		"keys", summary.Keys,
		"duration", summary.Duration,
	)

	return summary, nil
}

func (c *Coordinator) runLimited(ctx context.Context, cfg index.BuildConfig) (*index.BuildSummary, error) {
	if err := c.res.AcquireBuildSlot(ctx); err != nil {
		return nil, index.ErrCancelled
	}
	defer c.res.ReleaseBuildSlot()

	return c.idx.Build(ctx, cfg)
}
