// SPDX-License-Identifier: MIT

package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrlearn/adaptd/internal/model"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	assert.Equal(t, start, fc.Now())
	fc.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), fc.Now())
	assert.Equal(t, 90*time.Second, fc.Since(start))
}

func TestObserveReportsViolation(t *testing.T) {
	svc := NewService(Real{}, map[string]time.Duration{
		OpCalculator: 10 * time.Millisecond,
	})

	assert.False(t, svc.Observe(OpCalculator, 5*time.Millisecond))
	assert.True(t, svc.Observe(OpCalculator, 15*time.Millisecond))

	// Ops without a budget never violate.
	assert.False(t, svc.Observe("unbudgeted", time.Hour))
}

func TestRunReturnsDeadlineExceeded(t *testing.T) {
	fc := NewFake(time.Unix(0, 0))
	svc := NewService(fc, map[string]time.Duration{
		OpEndToEnd: 25 * time.Millisecond,
	})

	err := svc.Run(context.Background(), OpEndToEnd, func(ctx context.Context) error {
		fc.Advance(40 * time.Millisecond)
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDeadlineExceeded))

	// A fast unit of work passes.
	err = svc.Run(context.Background(), OpEndToEnd, func(ctx context.Context) error {
		fc.Advance(time.Millisecond)
		return nil
	})
	assert.NoError(t, err)
}

func TestRunPrefersWorkError(t *testing.T) {
	svc := NewService(Real{}, nil)
	boom := errors.New("boom")

	err := svc.Run(context.Background(), OpPersist, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestPercentile(t *testing.T) {
	svc := NewService(Real{}, nil)

	for i := 1; i <= 100; i++ {
		svc.Observe(OpCalculator, time.Duration(i)*time.Millisecond)
	}

	p95 := svc.Percentile(OpCalculator, 95)
	assert.InDelta(t, 95, float64(p95.Milliseconds()), 2)

	assert.Equal(t, time.Duration(0), svc.Percentile("never-seen", 95))
}

func TestRingBounded(t *testing.T) {
	svc := NewService(Real{}, nil)
	for i := 0; i < ringSize*2; i++ {
		svc.Observe(OpEndToEnd, time.Millisecond)
	}
	svc.mu.Lock()
	r := svc.rings[OpEndToEnd]
	svc.mu.Unlock()
	assert.True(t, r.filled)
	assert.Len(t, r.snapshot(), ringSize)
}
