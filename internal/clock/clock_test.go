package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeSleepAdvancesTime(t *testing.T) {
	start := time.Date(2024, time.January, 2, 9, 30, 0, 0, time.UTC)
	clk := NewFake(start)

	require.NoError(t, clk.Sleep(context.Background(), 2*time.Second))
	require.NoError(t, clk.Sleep(context.Background(), 0))
	require.NoError(t, clk.Sleep(context.Background(), -time.Second))
	clk.Advance(500 * time.Millisecond)

	assert.Equal(t, []time.Duration{2 * time.Second}, clk.Sleeps())
	assert.Equal(t, start.Add(2500*time.Millisecond), clk.Now())
}

func TestFakeSleepHonoursCancelledContext(t *testing.T) {
	clk := NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := clk.Sleep(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, clk.Sleeps())
}

func TestRealSleep(t *testing.T) {
	var clk Real

	start := time.Now()
	require.NoError(t, clk.Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, clk.Sleep(ctx, time.Hour), context.Canceled)
}
