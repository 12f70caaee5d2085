package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickRunsPostedClosuresInOrder(t *testing.T) {
	lp := New()

	var order []int
	lp.Post(func() { order = append(order, 1) })
	lp.Post(func() { order = append(order, 2) })
	lp.Post(func() { order = append(order, 3) })

	lp.Tick()

	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, uint64(1), lp.Ticks())
}

func TestPostDuringTickRunsNextTick(t *testing.T) {
	lp := New()

	var ran []string
	lp.Post(func() {
		ran = append(ran, "first")
		lp.Post(func() { ran = append(ran, "second") })
	})

	lp.Tick()
	assert.Equal(t, []string{"first"}, ran)

	lp.Tick()
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestAwaitTicksReturnsAfterNTicks(t *testing.T) {
	lp := New()

	done := make(chan error, 1)
	go func() {
		done <- lp.AwaitTicks(context.Background(), 3)
	}()

	for i := 0; i < 3; i++ {
		// Give the waiter a moment to re-arm between ticks.
		time.Sleep(time.Millisecond)
		lp.Tick()
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AwaitTicks did not return after 3 ticks")
	}
}

func TestAwaitTicksHonoursContextCancellation(t *testing.T) {
	lp := New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lp.AwaitTicks(ctx, 100)
	}()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("AwaitTicks did not observe cancellation")
	}
}
