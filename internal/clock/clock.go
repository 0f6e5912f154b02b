// SPDX-License-Identifier: MIT

// Package clock supplies monotonic time, per-operation latency budgets,
// and bounded latency recording for the adaptation core.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/vrlearn/adaptd/internal/metrics"
	"github.com/vrlearn/adaptd/internal/model"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// Real is the wall clock. time.Time carries a monotonic reading on Go,
// so Since is safe against wall-clock jumps.
type Real struct{}

func (Real) Now() time.Time                  { return time.Now() }
func (Real) Since(t time.Time) time.Duration { return time.Since(t) }

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a fake clock starting at the given instant.
func NewFake(start time.Time) *Fake { return &Fake{now: start} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Since(t time.Time) time.Duration { return f.Now().Sub(t) }

// Advance moves the fake clock forward.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Operation classes with latency budgets.
const (
	OpCalculator = "calculator"
	OpEndToEnd   = "end_to_end"
	OpLearner    = "tool_learner_model"
	OpKnowledge  = "tool_knowledge_model"
	OpEngagement = "tool_engagement"
	OpAssessment = "tool_assessment"
	OpDecision   = "tool_transition_decision"
	OpPersist    = "persist"
	OpAudit      = "audit"
)

const ringSize = 1024

// ring is a bounded latency buffer for one operation class.
type ring struct {
	samples [ringSize]time.Duration
	next    int
	filled  bool
}

func (r *ring) add(d time.Duration) {
	r.samples[r.next] = d
	r.next = (r.next + 1) % ringSize
	if r.next == 0 {
		r.filled = true
	}
}

func (r *ring) snapshot() []time.Duration {
	n := r.next
	if r.filled {
		n = ringSize
	}
	out := make([]time.Duration, n)
	copy(out, r.samples[:n])
	return out
}

// Service wraps units of work in deadlines and records observed latency.
type Service struct {
	clock   Clock
	mu      sync.Mutex
	budgets map[string]time.Duration
	rings   map[string]*ring
}

// NewService builds a deadline service with the given per-op budgets.
func NewService(c Clock, budgets map[string]time.Duration) *Service {
	if c == nil {
		c = Real{}
	}
	b := make(map[string]time.Duration, len(budgets))
	for op, d := range budgets {
		b[op] = d
	}
	return &Service{clock: c, budgets: b, rings: make(map[string]*ring)}
}

// Now returns the current monotonic instant.
func (s *Service) Now() time.Time { return s.clock.Now() }

// Budget returns the configured budget for op, or zero when unbounded.
func (s *Service) Budget(op string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgets[op]
}

// Observe records one measured latency and reports whether the budget
// was breached. A breach never aborts the session; callers log it.
func (s *Service) Observe(op string, d time.Duration) (violated bool) {
	s.mu.Lock()
	r, ok := s.rings[op]
	if !ok {
		r = &ring{}
		s.rings[op] = r
	}
	r.add(d)
	budget := s.budgets[op]
	s.mu.Unlock()

	metrics.ObserveLatency(op, d)
	if budget > 0 && d > budget {
		metrics.RecordLatencyViolation(op)
		return true
	}
	return false
}

// WithDeadline derives a context bounded by the op's budget. Ops without
// a configured budget pass through unchanged.
func (s *Service) WithDeadline(ctx context.Context, op string) (context.Context, context.CancelFunc) {
	budget := s.Budget(op)
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}

// Run measures fn under the op's budget. The returned violation error is
// model.ErrDeadlineExceeded; fn's own error takes precedence.
func (s *Service) Run(ctx context.Context, op string, fn func(context.Context) error) error {
	runCtx, cancel := s.WithDeadline(ctx, op)
	defer cancel()

	start := s.clock.Now()
	err := fn(runCtx)
	violated := s.Observe(op, s.clock.Since(start))

	if err != nil {
		return err
	}
	if violated {
		return model.ErrDeadlineExceeded
	}
	return nil
}

// Percentile computes the given percentile (0..100) over the recorded
// latencies of op. Returns zero when no samples exist.
func (s *Service) Percentile(op string, p float64) time.Duration {
	s.mu.Lock()
	r, ok := s.rings[op]
	var samples []time.Duration
	if ok {
		samples = r.snapshot()
	}
	s.mu.Unlock()

	if len(samples) == 0 {
		return 0
	}
	sortDurations(samples)
	idx := int(float64(len(samples)-1) * p / 100.0)
	return samples[idx]
}

func sortDurations(d []time.Duration) {
	// Insertion sort; ring snapshots are small and mostly ordered.
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && d[j] < d[j-1]; j-- {
			d[j], d[j-1] = d[j-1], d[j]
		}
	}
}
