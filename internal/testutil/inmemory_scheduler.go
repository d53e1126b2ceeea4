package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/timeline/internal/domain/subscription"
	"github.com/samber/lo"
)

// InMemoryScheduler records scheduled transitions instead of delivering them.
// Tests drive delivery by calling the transition service with Due.
type InMemoryScheduler struct {
	mu        sync.Mutex
	scheduled []*subscription.PendingTransition
	failures  int
	failWith  error
	attempts  int
}

func NewInMemoryScheduler() *InMemoryScheduler {
	return &InMemoryScheduler{}
}

// FailTimes makes the next n ScheduleAt calls fail with err
func (s *InMemoryScheduler) FailTimes(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.failWith = err
}

func (s *InMemoryScheduler) ScheduleAt(ctx context.Context, effectiveDate time.Time, transition *subscription.PendingTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.failures > 0 {
		s.failures--
		return s.failWith
	}

	c := *transition
	c.EffectiveDate = effectiveDate
	s.scheduled = append(s.scheduled, &c)
	return nil
}

// Scheduled returns every recorded transition
func (s *InMemoryScheduler) Scheduled() []*subscription.PendingTransition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*subscription.PendingTransition(nil), s.scheduled...)
}

// Due returns the recorded transitions effective at or before now
func (s *InMemoryScheduler) Due(now time.Time) []*subscription.PendingTransition {
	return lo.Filter(s.Scheduled(), func(t *subscription.PendingTransition, _ int) bool {
		return !t.EffectiveDate.After(now)
	})
}

// Attempts returns how many times ScheduleAt was called
func (s *InMemoryScheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Clear forgets every recorded transition
func (s *InMemoryScheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = nil
	s.failures = 0
	s.attempts = 0
}
