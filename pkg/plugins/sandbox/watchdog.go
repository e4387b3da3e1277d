package sandbox

import (
	"context"
	"fmt"
	"time"
)

// usage is a point-in-time sample of a child process.
type usage struct {
	rssBytes int64
	cpu      time.Duration
}

type breach struct {
	kind   Kind
	detail string
}

// watchdog enforces the memory and CPU ceilings for one call. It samples
// kernel accounting at a fixed interval; on breach it kills the child and
// reports exactly once. Sampling failures are ignored: a vanished process
// surfaces as an RPC error on the call path.
type watchdog struct {
	limits   Limits
	sample   func() (usage, error)
	kill     func()
	interval time.Duration
}

func newWatchdog(limits Limits, sample func() (usage, error), kill func(), interval time.Duration) *watchdog {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &watchdog{limits: limits, sample: sample, kill: kill, interval: interval}
}

// run starts the sampling loop. The returned channel carries at most one
// breach and is closed when the loop stops.
func (w *watchdog) run(ctx context.Context) <-chan *breach {
	ch := make(chan *breach, 1)

	go func() {
		defer close(ch)

		baseline, err := w.sample()
		if err != nil {
			baseline = usage{}
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				u, err := w.sample()
				if err != nil {
					continue
				}
				if b := w.check(u, baseline); b != nil {
					w.kill()
					ch <- b
					return
				}
			}
		}
	}()

	return ch
}

func (w *watchdog) check(u, baseline usage) *breach {
	if u.rssBytes > w.limits.MaxMemoryBytes {
		return &breach{
			kind:   KindMemoryExceeded,
			detail: fmt.Sprintf("resident set %d bytes exceeds ceiling %d bytes", u.rssBytes, w.limits.MaxMemoryBytes),
		}
	}
	// CPU is budgeted per call, so measure against the baseline taken at
	// call start.
	spent := u.cpu - baseline.cpu
	if spent > w.limits.CPUBudget() {
		return &breach{
			kind:   KindCPUExceeded,
			detail: fmt.Sprintf("cpu time %s exceeds budget %s", spent, w.limits.CPUBudget()),
		}
	}
	return nil
}
