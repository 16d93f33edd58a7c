package kthread_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petermattis/goid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/violin0622/kthread"
	"github.com/violin0622/kthread/platform"
)

// mockHandle implements platform.Handle for testing
type mockHandle struct {
	locked    atomic.Bool
	lockErr   error
	unlockErr error
	closeErr  error
	onUnlock  func() // runs inside Unlock before it returns
	lockCnt   atomic.Int32
	unlockCnt atomic.Int32
	closeCnt  atomic.Int32
}

func (h *mockHandle) Lock() error {
	h.lockCnt.Add(1)
	if h.lockErr != nil {
		return h.lockErr
	}
	h.locked.Store(true)
	return nil
}

func (h *mockHandle) Unlock() error {
	h.unlockCnt.Add(1)
	if h.onUnlock != nil {
		h.onUnlock()
	}
	if h.unlockErr != nil {
		return h.unlockErr
	}
	h.locked.Store(false)
	return nil
}

func (h *mockHandle) Close() error {
	h.closeCnt.Add(1)
	return h.closeErr
}

// mockStrategy implements platform.Strategy for testing
type mockStrategy struct {
	mu     sync.Mutex
	handle *mockHandle
	newErr error
	newCnt atomic.Int32
}

func newMockStrategy() *mockStrategy {
	return &mockStrategy{}
}

func (s *mockStrategy) Name() string   { return "mock" }
func (s *mockStrategy) Threaded() bool { return true }

func (s *mockStrategy) NewHandle() (platform.Handle, error) {
	s.newCnt.Add(1)
	if s.newErr != nil {
		return nil, s.newErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = &mockHandle{}
	return s.handle, nil
}

func (s *mockStrategy) getHandle() *mockHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func initMutex(t *testing.T, opts ...kthread.Option) *kthread.Mutex {
	t.Helper()
	m, err := kthread.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if m.State() == kthread.Initialized {
			m.Destroy()
		}
	})
	return m
}

func requireViolation(t *testing.T, err, kind error) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	assert.ErrorIs(t, err, kthread.ErrContractViolation)
	var cv *kthread.ContractViolation
	assert.ErrorAs(t, err, &cv)
}

const (
	waitFor = time.Second
	tick    = time.Millisecond
)

// recorder remembers what its destructor destroyed and where.
type recorder struct {
	d    *kthread.Destructor
	mu   sync.Mutex
	vals []any
	gids []int64
}

func newRecorder() *recorder {
	r := &recorder{}
	r.d = kthread.NewDestructor(r.destroy)
	return r
}

func (r *recorder) destroy(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vals = append(r.vals, v)
	r.gids = append(r.gids, goid.Get())
}

func (r *recorder) values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.vals...)
}

func (r *recorder) callers() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.gids...)
}

// threaded makes the test use native locks even in a kthread_nothreads
// build, for tests that contend from several goroutines.
func threaded(t *testing.T) {
	t.Cleanup(kthread.SetDefaultStrategy(platform.Native()))
}
