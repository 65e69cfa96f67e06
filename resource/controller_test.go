package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilControllerNeverLimits(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.AcquireBuildSlot(context.Background()))
	assert.True(t, c.TryAcquireBuildSlot())
	assert.NotPanics(t, c.ReleaseBuildSlot)
	assert.NoError(t, c.ThrottleIO(context.Background(), 1<<20))
}

func TestBuildSlots(t *testing.T) {
	c := NewController(Config{MaxBackgroundBuilds: 2})

	require.True(t, c.TryAcquireBuildSlot())
	require.True(t, c.TryAcquireBuildSlot())
	assert.False(t, c.TryAcquireBuildSlot())

	c.ReleaseBuildSlot()
	assert.True(t, c.TryAcquireBuildSlot())
}

func TestBuildSlotsDefaultToOne(t *testing.T) {
	c := NewController(Config{})

	require.True(t, c.TryAcquireBuildSlot())
	assert.False(t, c.TryAcquireBuildSlot())
}

func TestAcquireBuildSlotBlocksUntilRelease(t *testing.T) {
	c := NewController(Config{MaxBackgroundBuilds: 1})
	require.NoError(t, c.AcquireBuildSlot(context.Background()))

	acquired := make(chan error, 1)
	go func() {
		acquired <- c.AcquireBuildSlot(context.Background())
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should block while the slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	c.ReleaseBuildSlot()

	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire did not complete after release")
	}
}

func TestAcquireBuildSlotCancelled(t *testing.T) {
	c := NewController(Config{MaxBackgroundBuilds: 1})
	require.NoError(t, c.AcquireBuildSlot(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.AcquireBuildSlot(ctx), context.Canceled)
}

func TestThrottleIOUnlimited(t *testing.T) {
	c := NewController(Config{})

	start := time.Now()
	require.NoError(t, c.ThrottleIO(context.Background(), 64<<20))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestThrottleIOChunksOversizedReads(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	// A read larger than the burst must be charged in chunks instead of
	// failing WaitN outright.
	require.NoError(t, c.ThrottleIO(context.Background(), 3<<20))
}

func TestThrottleIOCancelled(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 16})

	// Drain the bucket so the next charge must wait.
	require.NoError(t, c.ThrottleIO(context.Background(), 16))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, c.ThrottleIO(ctx, 16))
}
