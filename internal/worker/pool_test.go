package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolRunsAllJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}

	pool := NewPool(4, func(ctx context.Context, logicalID string) error {
		mu.Lock()
		seen[logicalID]++
		mu.Unlock()
		return nil
	}, quietLogger(), nil)
	pool.Start()

	for i := 0; i < 20; i++ {
		if !pool.Submit(Job{Ctx: context.Background(), LogicalID: fmt.Sprintf("job-%d", i)}) {
			t.Fatalf("submit %d rejected", i)
		}
	}
	pool.Shutdown()

	if len(seen) != 20 {
		t.Fatalf("ran %d distinct jobs, want 20", len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("job %s ran %d times", id, count)
		}
	}
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	pool := NewPool(1, func(ctx context.Context, logicalID string) error {
		return nil
	}, quietLogger(), nil)
	pool.Start()
	pool.Shutdown()

	if pool.Submit(Job{Ctx: context.Background(), LogicalID: "late"}) {
		t.Fatal("submit accepted after shutdown")
	}
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	var ran atomic.Int32
	release := make(chan struct{})

	pool := NewPool(1, func(ctx context.Context, logicalID string) error {
		<-release
		ran.Add(1)
		return nil
	}, quietLogger(), nil)
	pool.Start()

	// One running, two queued behind it.
	for i := 0; i < 3; i++ {
		if !pool.Submit(Job{Ctx: context.Background(), LogicalID: fmt.Sprintf("job-%d", i)}) {
			t.Fatalf("submit %d rejected", i)
		}
	}

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()
	close(release)
	<-done

	if got := ran.Load(); got != 3 {
		t.Fatalf("ran %d jobs, want 3", got)
	}
}

func TestPoolSkipsCancelledJobs(t *testing.T) {
	var ran atomic.Int32

	pool := NewPool(1, func(ctx context.Context, logicalID string) error {
		ran.Add(1)
		return nil
	}, quietLogger(), nil)
	pool.Start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pool.Submit(Job{Ctx: ctx, LogicalID: "cancelled"})
	pool.Shutdown()

	if got := ran.Load(); got != 0 {
		t.Fatalf("cancelled job ran %d times", got)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	finished int
	errors   int
}

func (o *recordingObserver) JobStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) JobFinished(_ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	if err != nil {
		o.errors++
	}
}

func TestPoolObserver(t *testing.T) {
	observer := &recordingObserver{}

	pool := NewPool(2, func(ctx context.Context, logicalID string) error {
		if logicalID == "bad" {
			return errors.New("boom")
		}
		return nil
	}, quietLogger(), observer)
	pool.Start()

	pool.Submit(Job{Ctx: context.Background(), LogicalID: "good"})
	pool.Submit(Job{Ctx: context.Background(), LogicalID: "bad"})
	pool.Shutdown()

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if observer.started != 2 || observer.finished != 2 {
		t.Fatalf("started=%d finished=%d, want 2/2", observer.started, observer.finished)
	}
	if observer.errors != 1 {
		t.Fatalf("errors=%d, want 1", observer.errors)
	}
}
