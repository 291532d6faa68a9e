package callstats_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/effective-security/toolgate/callstats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RecordAndSnapshot(t *testing.T) {
	c := callstats.NewCollector()
	assert.Empty(t, c.Snapshot())

	c.Record("search", 100*time.Millisecond, false)
	c.Record("search", 300*time.Millisecond, true)
	c.Record("export", 50*time.Millisecond, false)

	stats := c.Snapshot()
	require.Len(t, stats, 2)

	// sorted by tool name
	assert.Equal(t, "export", stats[0].Tool)
	assert.Equal(t, uint64(1), stats[0].Calls)
	assert.Equal(t, uint64(0), stats[0].Errors)
	assert.Equal(t, float64(50), stats[0].AvgTimeMs)
	assert.Equal(t, "0.00", stats[0].ErrorRatePct)

	assert.Equal(t, "search", stats[1].Tool)
	assert.Equal(t, uint64(2), stats[1].Calls)
	assert.Equal(t, uint64(1), stats[1].Errors)
	assert.Equal(t, float64(200), stats[1].AvgTimeMs)
	assert.Equal(t, "50.00", stats[1].ErrorRatePct)
}

func Test_RecordConcurrent(t *testing.T) {
	c := callstats.NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Record("tool", 10*time.Millisecond, i%4 == 0)
		}(i)
	}
	wg.Wait()

	stats := c.Snapshot()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(100), stats[0].Calls)
	assert.Equal(t, uint64(25), stats[0].Errors)
	assert.Equal(t, "25.00", stats[0].ErrorRatePct)
}

func Test_Flusher(t *testing.T) {
	c := callstats.NewCollector()
	c.Record("tool", time.Millisecond, false)

	stop := c.StartFlusher(context.Background(), 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	stop()
	stop() // idempotent

	// flushing is read-only
	stats := c.Snapshot()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].Calls)
}
