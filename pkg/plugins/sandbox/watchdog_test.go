package sandbox

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func testLimits() Limits {
	return Limits{
		MaxMemoryBytes:      1 << 20,
		MaxCPUSeconds:       1,
		MaxWallClockSeconds: 5,
	}
}

func TestWatchdog_MemoryBreach(t *testing.T) {
	var killed atomic.Bool
	samples := make(chan usage, 2)
	samples <- usage{rssBytes: 100}
	samples <- usage{rssBytes: 2 << 20}

	wd := newWatchdog(testLimits(),
		func() (usage, error) { return <-samples, nil },
		func() { killed.Store(true) },
		time.Millisecond,
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	b := <-wd.run(ctx)
	if b == nil {
		t.Fatal("expected a breach")
	}
	if b.kind != KindMemoryExceeded {
		t.Errorf("expected memory_exceeded, got %s", b.kind)
	}
	if !killed.Load() {
		t.Error("expected the child to be killed before the breach is reported")
	}
}

func TestWatchdog_CPUBreachIsRelativeToBaseline(t *testing.T) {
	// The process already spent 10s of CPU before this call; only the
	// delta counts against the 1s budget.
	samples := make(chan usage, 3)
	samples <- usage{cpu: 10 * time.Second} // baseline
	samples <- usage{cpu: 10*time.Second + 500*time.Millisecond}
	samples <- usage{cpu: 12 * time.Second}

	wd := newWatchdog(testLimits(),
		func() (usage, error) { return <-samples, nil },
		func() {},
		time.Millisecond,
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	b := <-wd.run(ctx)
	if b == nil {
		t.Fatal("expected a breach")
	}
	if b.kind != KindCPUExceeded {
		t.Errorf("expected cpu_exceeded, got %s", b.kind)
	}
}

func TestWatchdog_StopsCleanlyWithoutBreach(t *testing.T) {
	var kills atomic.Int32
	wd := newWatchdog(testLimits(),
		func() (usage, error) { return usage{rssBytes: 1}, nil },
		func() { kills.Add(1) },
		time.Millisecond,
	)

	ctx, cancel := context.WithCancel(context.Background())
	ch := wd.run(ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()

	if b, ok := <-ch; ok && b != nil {
		t.Errorf("expected no breach, got %v", b.kind)
	}
	if kills.Load() != 0 {
		t.Error("watchdog killed a healthy process")
	}
}

func TestWatchdog_ReportsAtMostOnce(t *testing.T) {
	wd := newWatchdog(testLimits(),
		func() (usage, error) { return usage{rssBytes: 10 << 20}, nil },
		func() {},
		time.Millisecond,
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch := wd.run(ctx)
	first := <-ch
	if first == nil {
		t.Fatal("expected a breach")
	}
	if second, ok := <-ch; ok && second != nil {
		t.Error("watchdog reported more than one breach")
	}
}

func TestLimitsValidate(t *testing.T) {
	if err := DefaultLimits().Validate(); err != nil {
		t.Fatalf("default limits must validate: %v", err)
	}

	bad := Limits{MaxMemoryBytes: 0, MaxCPUSeconds: -1, MaxWallClockSeconds: 0}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation failure for unbounded limits")
	}

	l := Limits{MaxMemoryBytes: 1, MaxCPUSeconds: 0.5, MaxWallClockSeconds: 2}
	if l.CPUBudget() != 500*time.Millisecond {
		t.Errorf("unexpected cpu budget %s", l.CPUBudget())
	}
	if l.WallClock() != 2*time.Second {
		t.Errorf("unexpected wall clock %s", l.WallClock())
	}
}
