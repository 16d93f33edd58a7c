package platform_test

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/violin0622/kthread/platform"
)

func TestNative_LockUnlock(t *testing.T) {
	s := platform.Native()
	if !s.Threaded() {
		t.Fatal("native strategy should be threaded")
	}

	h, err := s.NewHandle()
	if err != nil {
		t.Fatalf("new handle failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := h.Lock(); err != nil {
			t.Fatalf("cycle %d: lock failed: %v", i, err)
		}
		if err := h.Unlock(); err != nil {
			t.Fatalf("cycle %d: unlock failed: %v", i, err)
		}
	}

	if err := h.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := h.Close(); !errors.Is(err, platform.ErrClosed) {
		t.Fatalf("expected ErrClosed on second close, got: %v", err)
	}
}

func TestNative_Blocks(t *testing.T) {
	h, _ := platform.Native().NewHandle()
	if err := h.Lock(); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		h.Lock()
		close(acquired)
		h.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock should block while held")
	default:
	}

	h.Unlock()
	<-acquired
}

func TestNative_MutualExclusion(t *testing.T) {
	h, _ := platform.Native().NewHandle()

	const goroutines, iterations = 8, 1000
	var counter int
	var wg sync.WaitGroup
	for _i := 0; _i < goroutines; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _i := 0; _i < iterations; _i++ {
				h.Lock()
				counter++
				h.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*iterations {
		t.Errorf("expected %d, got %d", goroutines*iterations, counter)
	}
}

func TestNoThreads_WouldBlock(t *testing.T) {
	s := platform.NoThreads()
	if s.Threaded() {
		t.Fatal("nothreads strategy should not be threaded")
	}

	h, err := s.NewHandle()
	if err != nil {
		t.Fatalf("new handle failed: %v", err)
	}

	if err := h.Lock(); err != nil {
		t.Fatalf("first lock failed: %v", err)
	}

	// A second lock can only succeed by waiting, which is impossible
	err = h.Lock()
	if !errors.Is(err, platform.ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock, got: %v", err)
	}
	var perr *platform.Error
	if !errors.As(err, &perr) || perr.Op != "lock" {
		t.Fatalf("expected *platform.Error for lock, got: %#v", err)
	}

	if err := h.Unlock(); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if err := h.Unlock(); !errors.Is(err, platform.ErrNotLocked) {
		t.Fatalf("expected ErrNotLocked, got: %v", err)
	}
}

func TestProbe_ComputedOnce(t *testing.T) {
	var calls atomic.Int32
	s := platform.ProbeWith(func() bool {
		calls.Add(1)
		return true
	})

	var wg sync.WaitGroup
	for _i := 0; _i < 32; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := s.NewHandle()
			if err != nil {
				t.Errorf("new handle failed: %v", err)
				return
			}
			h.Lock()
			h.Unlock()
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected probe to run once, ran %d times", calls.Load())
	}
	if s.Name() != "probe/native" {
		t.Errorf("unexpected name %q", s.Name())
	}
}

func TestProbe_Degrades(t *testing.T) {
	s := platform.ProbeWith(func() bool { return false })
	if s.Threaded() {
		t.Fatal("degraded probe should not be threaded")
	}
	if s.Name() != "probe/nothreads" {
		t.Errorf("unexpected name %q", s.Name())
	}

	h, err := s.NewHandle()
	if err != nil {
		t.Fatalf("new handle failed: %v", err)
	}
	if err := h.Lock(); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if err := h.Lock(); !errors.Is(err, platform.ErrWouldBlock) {
		t.Fatalf("degraded handle should not block, got: %v", err)
	}
}

func TestThreadingAvailable_Stable(t *testing.T) {
	first := platform.ThreadingAvailable()
	for _i := 0; _i < 10; _i++ {
		if platform.ThreadingAvailable() != first {
			t.Fatal("probe result changed")
		}
	}
}

func TestDefault(t *testing.T) {
	s := platform.Default()
	if s == nil {
		t.Fatal("no default strategy")
	}
	h, err := s.NewHandle()
	if err != nil {
		t.Fatalf("new handle from %s failed: %v", s.Name(), err)
	}
	if err := h.Lock(); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if err := h.Unlock(); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestError(t *testing.T) {
	err := &platform.Error{Op: "WaitForSingleObject", Code: 6, Err: errors.New("invalid handle")}
	if got, want := err.Error(), "WaitForSingleObject: invalid handle (code 6)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestProbe_DisableThreadsEnv(t *testing.T) {
	const child = "KTHREAD_TEST_PROBE_CHILD"
	if os.Getenv(child) == "1" {
		if platform.ThreadingAvailable() {
			t.Fatalf("%s is set but threading is reported available", platform.DisableThreadsEnv)
		}
		if s := platform.Probe(); s.Threaded() || s.Name() != "probe/nothreads" {
			t.Fatalf("probe should degrade, got %s", s.Name())
		}
		return
	}
	if runtime.GOOS == "js" || runtime.GOOS == "wasip1" {
		t.Skip("cannot start a subprocess")
	}

	// The probe result is fixed per process, so check it in a fresh one.
	cmd := exec.Command(os.Args[0], "-test.run=^TestProbe_DisableThreadsEnv$", "-test.v")
	cmd.Env = append(os.Environ(), child+"=1", platform.DisableThreadsEnv+"=true")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("child failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "--- PASS: TestProbe_DisableThreadsEnv") {
		t.Fatalf("child did not run the test:\n%s", out)
	}
}
