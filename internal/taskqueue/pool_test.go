package taskqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(context.Background(), 3)
	var running, peak atomic.Int64
	for i := 0; i < 12; i++ {
		p.Queue(func(ctx context.Context) error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}
	p.Flush()
	if got := peak.Load(); got > 3 {
		t.Fatalf("peak concurrency got %d want <= 3", got)
	}
	if done, _ := p.Counts(); done != 12 {
		t.Fatalf("done got %d want 12", done)
	}
}

func TestPoolIsolatesFailures(t *testing.T) {
	p := New(context.Background(), 0)
	var (
		mu     sync.Mutex
		errs   []error
		calls  atomic.Int64
		lastOK atomic.Int64
	)
	p.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	p.OnDone(func(done, queued int64) { lastOK.Store(done) })
	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		fail := i%2 == 0
		p.Queue(func(ctx context.Context) error {
			calls.Add(1)
			if fail {
				return boom
			}
			return nil
		})
	}
	p.Flush()
	if calls.Load() != 5 {
		t.Fatalf("calls got %d want 5", calls.Load())
	}
	done, failed := p.Counts()
	if done != 5 || failed != 3 {
		t.Fatalf("counts got %d/%d want 5/3", done, failed)
	}
	if len(errs) != 3 || !errors.Is(errs[0], boom) {
		t.Fatalf("errors got %v", errs)
	}
	if lastOK.Load() == 0 {
		t.Fatalf("progress callback never fired")
	}
}
