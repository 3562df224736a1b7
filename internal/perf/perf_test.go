package perf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTracker(t *testing.T) *Tracker {
	t.Helper()
	tracker := New(time.Hour, nil) // interval long enough that sampling never fires
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tracker.Start(ctx)
	return tracker
}

func TestTracker_PhaseAggregation(t *testing.T) {
	tracker := startTracker(t)

	tracker.RecordPhase("chunking", 10*time.Millisecond)
	tracker.RecordPhase("chunking", 30*time.Millisecond)
	tracker.RecordPhase("embedding", 5*time.Millisecond)

	snap := tracker.Snapshot()
	require.Contains(t, snap.Phases, "chunking")
	assert.Equal(t, int64(2), snap.Phases["chunking"].Count)
	assert.Equal(t, 40*time.Millisecond, snap.Phases["chunking"].Total)
	assert.Equal(t, 30*time.Millisecond, snap.Phases["chunking"].Max)
	assert.Equal(t, 20*time.Millisecond, snap.Phases["chunking"].Mean())
	assert.Equal(t, int64(1), snap.Phases["embedding"].Count)
}

func TestTracker_CountersFromConcurrentProducers(t *testing.T) {
	tracker := startTracker(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.AddCounter("chunks", 1)
			}
		}()
	}
	wg.Wait()

	snap := tracker.Snapshot()
	assert.Equal(t, int64(800), snap.Counters["chunks"])
}

func TestTracker_Gauges(t *testing.T) {
	tracker := startTracker(t)

	tracker.SetGauge("budget_utilization", 0.42)
	tracker.SetGauge("budget_utilization", 0.55)

	snap := tracker.Snapshot()
	assert.Equal(t, 0.55, snap.Gauges["budget_utilization"])
}

func TestTracker_StartTimer(t *testing.T) {
	tracker := startTracker(t)

	stop := tracker.StartTimer("storing")
	time.Sleep(2 * time.Millisecond)
	stop()

	snap := tracker.Snapshot()
	require.Contains(t, snap.Phases, "storing")
	assert.GreaterOrEqual(t, snap.Phases["storing"].Total, 2*time.Millisecond)
}

func TestTracker_StopDropsLaterEvents(t *testing.T) {
	tracker := New(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker.Start(ctx)

	tracker.Stop()
	tracker.AddCounter("late", 1) // must not block or panic

	snap := tracker.Snapshot()
	assert.Zero(t, snap.Counters["late"])
}

func TestSnapshot_Flatten(t *testing.T) {
	tracker := startTracker(t)
	tracker.RecordPhase("chunking", 10*time.Millisecond)
	tracker.AddCounter("files", 3)
	tracker.SetGauge("budget_utilization", 0.8)

	flat := tracker.Snapshot().Flatten()
	assert.Equal(t, 1.0, flat["phase.chunking.count"])
	assert.Equal(t, 3.0, flat["counter.files"])
	assert.Equal(t, 0.8, flat["gauge.budget_utilization"])
}

func TestSampler_CollectsProcessStats(t *testing.T) {
	tracker := New(5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker.Start(ctx)

	require.Eventually(t, func() bool {
		return tracker.Snapshot().PeakRSSBytes > 0
	}, 2*time.Second, 10*time.Millisecond, "sampler should observe nonzero RSS")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "1.5 MiB", FormatBytes(3*1024*1024/2))
}
