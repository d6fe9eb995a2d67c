package gpioline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(opts ...Option) (*Registry, *TestOpener) {
	opener := &TestOpener{}
	opts = append([]Option{WithOpener(opener.Open)}, opts...)
	return NewRegistry(zap.NewNop(), opts...), opener
}

func TestAcquireIdentity(t *testing.T) {
	assert := assert.New(t)

	reg, opener := testRegistry()
	key := LineKey{Chip: "/dev/gpiochip0", Offset: 17}

	a, err := reg.Acquire(key)
	require.NoError(t, err)
	b, err := reg.Acquire(key)
	require.NoError(t, err)
	other, err := reg.Acquire(LineKey{Chip: "/dev/gpiochip0", Offset: 18})
	require.NoError(t, err)

	assert.Same(a, b, "same key same resource")
	assert.NotSame(a, other, "different keys")
	assert.Equal(2, opener.Count(), "line opened once per key")
}

func TestAcquireConcurrent(t *testing.T) {
	reg, opener := testRegistry()
	key := LineKey{Chip: "gpiochip1", Offset: 3}

	var wg sync.WaitGroup
	results := make([]*Resource, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := reg.Acquire(key)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i := range results {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, opener.Count())
}

func TestWriteLevel(t *testing.T) {
	reg, opener := testRegistry()
	key := LineKey{Chip: "gpiochip0", Offset: 4}

	require.NoError(t, reg.WriteLevel(context.Background(), key, true))
	require.NoError(t, reg.WriteLevel(context.Background(), key, false))

	assert.Equal(t, []int{1, 0}, opener.Last().Levels())
}

func TestWritePulsesLevelsAndTiming(t *testing.T) {
	assert := assert.New(t)

	reg, opener := testRegistry()
	key := LineKey{Chip: "gpiochip0", Offset: 5}

	start := time.Now()
	err := reg.WritePulses(context.Background(), key, []int{1000, -1000, 2000})
	elapsed := time.Since(start)
	require.NoError(t, err)

	line := opener.Last()
	assert.Equal([]int{1, 0, 1}, line.Levels())

	// three holds compensated by 15us each
	assert.GreaterOrEqual(elapsed, 4000*time.Microsecond-3*DEFAULT_PULSE_OVERHEAD)
	assert.Less(elapsed, 100*time.Millisecond)

	tr := line.Transitions()
	assert.GreaterOrEqual(tr[1].At.Sub(tr[0].At), 1000*time.Microsecond-DEFAULT_PULSE_OVERHEAD)
	assert.GreaterOrEqual(tr[2].At.Sub(tr[1].At), 1000*time.Microsecond-DEFAULT_PULSE_OVERHEAD)
}

func TestPlanPulses(t *testing.T) {
	assert := assert.New(t)

	plan, total := planPulses([]int{10, -100, 0}, DEFAULT_PULSE_OVERHEAD)

	assert.Len(plan, 3)
	assert.Equal(1, plan[0].level)
	assert.Equal(time.Duration(0), plan[0].hold, "hold never negative")
	assert.Equal(0, plan[1].level)
	assert.Equal(85*time.Microsecond, plan[1].hold)
	assert.Equal(1, plan[2].level, "zero drives high")
	assert.Equal(110*time.Microsecond, total)
}

func TestResourceBusy(t *testing.T) {
	reg, _ := testRegistry(WithLockTimeout(50 * time.Millisecond))
	key := LineKey{Chip: "gpiochip0", Offset: 6}

	res, err := reg.Acquire(key)
	require.NoError(t, err)
	require.NoError(t, res.lock.Acquire(context.Background(), 1))

	start := time.Now()
	err = reg.WriteLevel(context.Background(), key, true)
	assert.True(t, errors.Is(err, ErrResourceBusy))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	err = reg.WritePulses(context.Background(), key, []int{100})
	assert.ErrorIs(t, err, ErrResourceBusy)

	res.lock.Release(1)
	assert.NoError(t, reg.WriteLevel(context.Background(), key, true))
}

func TestLockReleasedAfterWriteError(t *testing.T) {
	reg, opener := testRegistry()
	key := LineKey{Chip: "gpiochip0", Offset: 7}

	require.NoError(t, reg.WriteLevel(context.Background(), key, true))
	opener.Last().Close()

	assert.Error(t, reg.WriteLevel(context.Background(), key, true))
	assert.Error(t, reg.WritePulses(context.Background(), key, []int{10}))

	res, err := reg.Acquire(key)
	require.NoError(t, err)
	assert.True(t, res.lock.TryAcquire(1), "lock free after failed writes")
}

func TestRelease(t *testing.T) {
	assert := assert.New(t)

	reg, opener := testRegistry()
	key := LineKey{Chip: "gpiochip0", Offset: 8}

	first, err := reg.Acquire(key)
	require.NoError(t, err)
	require.NoError(t, reg.Release(context.Background(), key))
	assert.True(opener.Last().Closed())
	assert.NoError(reg.Release(context.Background(), key), "idempotent")

	second, err := reg.Acquire(key)
	require.NoError(t, err)
	assert.NotSame(first, second, "reopened after release")
	assert.Equal(2, opener.Count())
}

func TestLineKeyString(t *testing.T) {
	assert.Equal(t, "/dev/gpiochip0/17", LineKey{Chip: "/dev/gpiochip0", Offset: 17}.String())
}
