package kthread

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"
)

// Stats is a read-only snapshot of mutex timing statistics.
// Everything is zero unless the package is built with the kthread_stats tag.
type Stats struct {
	Count     int64     // Number of successful lock acquisitions
	Created   time.Time // When the mutex finished initialization
	HoldSince time.Time // Zero if not locked.
	LockWait  TimeStats // Time spent blocked in Lock
	LockHeld  TimeStats // Time from Lock to the matching Unlock
}

// TimeStats summarizes a series of durations.
type TimeStats struct {
	N     int64
	Min   time.Duration
	Max   time.Duration
	Sum   time.Duration
	SqSum float64 // sum of squares, in nanoseconds squared
}

// Mean returns the average duration, or zero for an empty series.
func (t TimeStats) Mean() time.Duration {
	if t.N == 0 {
		return 0
	}
	return t.Sum / time.Duration(t.N)
}

// StdDev returns the population standard deviation of the series.
func (t TimeStats) StdDev() time.Duration {
	if t.N == 0 {
		return 0
	}
	n := float64(t.N)
	mean := float64(t.Sum) / n
	v := t.SqSum/n - mean*mean
	if v <= 0 {
		return 0
	}
	return time.Duration(math.Sqrt(v))
}

// Report writes the snapshot to log as a single entry.
func (s Stats) Report(log logr.Logger, name string) {
	log.Info(`Mutex statistics.`,
		`name`, name,
		`count`, s.Count,
		`created`, s.Created,
		`waitMean`, s.LockWait.Mean(),
		`waitMax`, s.LockWait.Max,
		`waitStdDev`, s.LockWait.StdDev(),
		`heldMean`, s.LockHeld.Mean(),
		`heldMax`, s.LockHeld.Max,
		`heldStdDev`, s.LockHeld.StdDev(),
	)
}

// stats is written by the goroutine holding the cell, except for lockheld,
// which is recorded after the native release and so may race with the next
// holder's release; heldMu serializes those.
type stats struct {
	clock      clockwork.Clock
	heldMu     sync.Mutex
	count      atomic.Int64
	createdat  atomic.Int64 // nanoseconds timestamp
	acquiredat atomic.Int64 // nanoseconds timestamp
	lockwait   timeDiffs
	lockheld   timeDiffs
}

type timeDiffs struct {
	n, min, max, sum atomic.Int64
	sqsum            atomic.Uint64 // float64 bits
}

func (d *timeDiffs) add(v time.Duration) {
	ns := int64(v)
	if d.n.Load() == 0 || ns < d.min.Load() {
		d.min.Store(ns)
	}
	if ns > d.max.Load() {
		d.max.Store(ns)
	}
	d.sum.Add(ns)
	f := float64(ns)
	d.sqsum.Store(math.Float64bits(math.Float64frombits(d.sqsum.Load()) + f*f))
	d.n.Add(1)
}

func (d *timeDiffs) reset() {
	d.n.Store(0)
	d.min.Store(0)
	d.max.Store(0)
	d.sum.Store(0)
	d.sqsum.Store(0)
}

func (d *timeDiffs) snapshot() TimeStats {
	return TimeStats{
		N:     d.n.Load(),
		Min:   time.Duration(d.min.Load()),
		Max:   time.Duration(d.max.Load()),
		Sum:   time.Duration(d.sum.Load()),
		SqSum: math.Float64frombits(d.sqsum.Load()),
	}
}

func (c *stats) reset(clock clockwork.Clock) {
	if !StatsEnabled {
		return
	}
	c.clock = clock
	c.count.Store(0)
	c.acquiredat.Store(0)
	c.lockwait.reset()
	c.lockheld.reset()
	c.createdat.Store(clock.Now().UnixNano())
}

// now returns the zero time when statistics are compiled out.
func (c *stats) now() time.Time {
	if !StatsEnabled || c.clock == nil {
		return time.Time{}
	}
	return c.clock.Now()
}

func (c *stats) acquired(start time.Time) {
	if !StatsEnabled || c.clock == nil {
		return
	}
	at := c.clock.Now()
	c.lockwait.add(at.Sub(start))
	c.count.Add(1)
	c.acquiredat.Store(at.UnixNano())
}

// holding returns the acquisition timestamp of the current hold.
func (c *stats) holding() int64 {
	if !StatsEnabled {
		return 0
	}
	return c.acquiredat.Load()
}

// released records the hold that began at at. It is called once the native
// release has succeeded, so a failed Unlock leaves the hold open.
func (c *stats) released(at int64) {
	if !StatsEnabled || c.clock == nil || at == 0 {
		return
	}
	c.acquiredat.CompareAndSwap(at, 0)
	d := c.clock.Since(nano2time(at))

	c.heldMu.Lock()
	defer c.heldMu.Unlock()
	c.lockheld.add(d)
}

// snapshot returns a read-only copy of current statistics.
func (c *stats) snapshot() Stats {
	if !StatsEnabled {
		return Stats{}
	}
	return Stats{
		Count:     c.count.Load(),
		Created:   nano2time(c.createdat.Load()),
		HoldSince: nano2time(c.acquiredat.Load()),
		LockWait:  c.lockwait.snapshot(),
		LockHeld:  c.lockheld.snapshot(),
	}
}

func nano2time(at int64) time.Time {
	if at == 0 {
		return time.Time{}
	}
	return time.Unix(at/1e9, at%1e9)
}
