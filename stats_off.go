//go:build !kthread_stats

package kthread

// StatsEnabled is true when built with the kthread_stats tag.
const StatsEnabled = false
