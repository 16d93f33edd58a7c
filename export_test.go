package kthread

// SetDefaultStrategy replaces the build's strategy until restore is called.
// Tests using it must not run in parallel.
func SetDefaultStrategy(s Strategy) (restore func()) {
	old := defaultStrategy
	defaultStrategy = s
	return func() { defaultStrategy = old }
}

var WithStrategy = withStrategy

// ThreadCount returns how many goroutines have a slot table in r.
func ThreadCount(r *Registry) int {
	n := 0
	r.threads.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
