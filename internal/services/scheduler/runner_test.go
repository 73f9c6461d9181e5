package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingCycler struct {
	cycleTime time.Duration

	mu     sync.Mutex
	starts []time.Time
}

func (c *countingCycler) RunCycle(ctx context.Context, targets []probe.Target) CycleStats {
	c.mu.Lock()
	c.starts = append(c.starts, time.Now())
	c.mu.Unlock()
	if c.cycleTime > 0 {
		time.Sleep(c.cycleTime)
	}
	return CycleStats{Targets: len(targets)}
}

func (c *countingCycler) Starts() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.starts...)
}

func TestRun_OnceRunsSingleCycle(t *testing.T) {
	c := &countingCycler{}
	r := New(zap.NewNop(), c, nil, time.Minute, true)

	require.NoError(t, r.Run(context.Background()))
	assert.Len(t, c.Starts(), 1)
}

func TestRun_NonPositiveIntervalIsSingleShot(t *testing.T) {
	for _, iv := range []time.Duration{0, -time.Minute} {
		c := &countingCycler{}
		r := New(zap.NewNop(), c, nil, iv, false)

		require.NoError(t, r.Run(context.Background()))
		assert.Len(t, c.Starts(), 1)
		assert.True(t, r.SingleShot())
	}
}

func TestRun_IntervalMeasuredFromCycleStart(t *testing.T) {
	const interval = 60 * time.Millisecond
	c := &countingCycler{cycleTime: 30 * time.Millisecond}
	r := New(zap.NewNop(), c, nil, interval, false)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	starts := c.Starts()
	require.GreaterOrEqual(t, len(starts), 3)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, interval)
		assert.Less(t, gap, interval+c.cycleTime)
	}
}

func TestRun_CancelDuringSleepReturnsPromptly(t *testing.T) {
	c := &countingCycler{}
	r := New(zap.NewNop(), c, nil, time.Hour, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Len(t, c.Starts(), 1)
}

func TestHealthy(t *testing.T) {
	r := New(zap.NewNop(), &countingCycler{}, nil, 10*time.Millisecond, false)
	health := r.Healthy(0)
	require.NoError(t, health(context.Background()))

	r.lastStart.Store(time.Now().Add(-time.Second).UnixNano())
	assert.ErrorIs(t, health(context.Background()), errStalled)

	r.lastStart.Store(time.Now().UnixNano())
	assert.NoError(t, health(context.Background()))
}
