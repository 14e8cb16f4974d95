package keepalive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRunEmitsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	count := 0
	done := make(chan struct{})

	go func() {
		Run(ctx, 10*time.Millisecond, func(context.Context) error {
			mu.Lock()
			count++
			n := count
			mu.Unlock()
			if n >= 3 {
				cancel()
			}
			return nil
		}, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	if count < 3 {
		t.Errorf("emissions = %d, want at least 3", count)
	}
}

func TestRunSwallowsErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{})
	var once sync.Once

	go Run(ctx, 5*time.Millisecond, func(context.Context) error {
		once.Do(func() { close(fired) })
		return errors.New("surface unavailable")
	}, nil)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("signal never fired")
	}
	// A second tick after the error proves the loop survived it.
	time.Sleep(20 * time.Millisecond)
	cancel()
}

func TestRunZeroIntervalWaitsForCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Run(ctx, 0, func(context.Context) error {
			t.Error("fn must not run with a zero interval")
			return nil
		}, nil)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}

func TestThrottlerFlushesOnBatchSize(t *testing.T) {
	var mu sync.Mutex
	var blocks []string

	tr := NewThrottler(3, time.Hour, func(text string) {
		mu.Lock()
		blocks = append(blocks, text)
		mu.Unlock()
	}, nil)

	tr.Observe("one")
	tr.Observe("two")

	mu.Lock()
	if len(blocks) != 0 {
		t.Fatalf("flushed before the cap: %v", blocks)
	}
	mu.Unlock()

	tr.Observe("three")

	mu.Lock()
	defer mu.Unlock()
	if len(blocks) != 1 || blocks[0] != "one\ntwo\nthree" {
		t.Errorf("blocks = %v", blocks)
	}
}

func TestThrottlerFlushesOnInterval(t *testing.T) {
	var blocks []string
	tr := NewThrottler(100, 50*time.Millisecond, func(text string) {
		blocks = append(blocks, text)
	}, nil)

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := base
	tr.now = func() time.Time { return now }
	tr.lastFlush = base

	tr.Observe("early")
	if len(blocks) != 0 {
		t.Fatalf("flushed before the interval: %v", blocks)
	}

	now = base.Add(60 * time.Millisecond)
	tr.Observe("late")

	if len(blocks) != 1 || blocks[0] != "early\nlate" {
		t.Errorf("blocks = %v", blocks)
	}
}

func TestThrottlerFinalFlushDrainsTail(t *testing.T) {
	var blocks []string
	tr := NewThrottler(10, time.Hour, func(text string) {
		blocks = append(blocks, text)
	}, nil)

	tr.Observe("tail line")
	tr.Flush()

	if len(blocks) != 1 || blocks[0] != "tail line" {
		t.Errorf("blocks = %v", blocks)
	}

	// Flushing an empty buffer emits nothing.
	tr.Flush()
	if len(blocks) != 1 {
		t.Errorf("empty flush emitted: %v", blocks)
	}
}

func TestThrottlerSurvivesSinkPanic(t *testing.T) {
	calls := 0
	tr := NewThrottler(1, time.Hour, func(text string) {
		calls++
		panic("sink broke")
	}, nil)

	tr.Observe("first")
	tr.Observe("second")

	if calls != 2 {
		t.Errorf("sink calls = %d, want 2 despite panics", calls)
	}
}
