package gpioline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

type pulse struct {
	level    int
	hold     time.Duration
	expected time.Duration
}

// planPulses turns signed microsecond durations into levels and hold times.
// Non-negative values drive the line high, negative values drive it low. The
// hold time is reduced by the per-transition overhead.
func planPulses(durations []int, overhead time.Duration) ([]pulse, time.Duration) {
	plan := make([]pulse, 0, len(durations))
	var total time.Duration
	for _, d := range durations {
		level := 1
		if d < 0 {
			level = 0
			d = -d
		}
		expected := time.Duration(d) * time.Microsecond
		hold := expected - overhead
		if hold < 0 {
			hold = 0
		}
		plan = append(plan, pulse{level: level, hold: hold, expected: expected})
		total += expected
	}
	return plan, total
}

// runPulses busy-waits between transitions. Each deadline is measured from the
// moment the previous hold finished.
func runPulses(line Line, plan []pulse) (time.Duration, error) {
	start := time.Now()
	for i := range plan {
		t := time.Now()
		if err := line.SetValue(plan[i].level); err != nil {
			return time.Since(start), err
		}
		for time.Since(t) < plan[i].hold {
		}
	}
	return time.Since(start), nil
}

type pulseResult struct {
	elapsed time.Duration
	err     error
}

// WritePulses emits the whole train under a single lock acquisition. Once the
// lock is held the train runs to completion on a dedicated OS thread.
func (r *Registry) WritePulses(ctx context.Context, key LineKey, durations []int) error {
	plan, expected := planPulses(durations, r.overhead)
	if len(plan) == 0 {
		return nil
	}

	res, err := r.acquireLocked(ctx, key)
	if err != nil {
		return err
	}
	defer res.lock.Release(1)

	done := make(chan pulseResult, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		elapsed, err := runPulses(res.line, plan)
		done <- pulseResult{elapsed: elapsed, err: err}
	}()
	result := <-done

	r.logger.Debug("gpioline: pulse train",
		zap.Stringer("key", key),
		zap.Int("pulses", len(plan)),
		zap.Duration("elapsed", result.elapsed),
		zap.Duration("expected", expected))

	if result.err != nil {
		return fmt.Errorf("write pulses %s: %w", key, result.err)
	}
	return nil
}
