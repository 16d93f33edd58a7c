package kthread_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/violin0622/kthread"
)

func TestTimeStats(t *testing.T) {
	var empty kthread.TimeStats
	assert.Zero(t, empty.Mean())
	assert.Zero(t, empty.StdDev())

	// 2ms, 4ms, 6ms
	ts := kthread.TimeStats{
		N:     3,
		Min:   2 * time.Millisecond,
		Max:   6 * time.Millisecond,
		Sum:   12 * time.Millisecond,
		SqSum: 4e12 + 16e12 + 36e12,
	}
	assert.Equal(t, 4*time.Millisecond, ts.Mean())
	assert.InDelta(t, 1632993, int64(ts.StdDev()), 1)

	constant := kthread.TimeStats{N: 2, Sum: 2 * time.Second, SqSum: 2e18}
	assert.Zero(t, constant.StdDev())
}
