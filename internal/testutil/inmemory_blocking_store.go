package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/timeline/internal/domain/blocking"
	ierr "github.com/flexprice/timeline/internal/errors"
)

// InMemoryBlockingStateStore implements blocking.Repository
type InMemoryBlockingStateStore struct {
	mu       sync.RWMutex
	states   []*blocking.BlockingState
	sequence int64
}

func NewInMemoryBlockingStateStore() *InMemoryBlockingStateStore {
	return &InMemoryBlockingStateStore{}
}

func (s *InMemoryBlockingStateStore) Append(ctx context.Context, state *blocking.BlockingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.IsSynthetic {
		return ierr.NewError("synthetic blocking states cannot be persisted").
			Mark(ierr.ErrInvalidOperation)
	}
	for _, existing := range s.states {
		if existing.ID == state.ID {
			return ierr.NewErrorf("blocking state %s already exists", state.ID).
				Mark(ierr.ErrAlreadyExists)
		}
	}

	s.sequence++
	state.TotalOrdering = s.sequence
	c := *state
	s.states = append(s.states, &c)
	return nil
}

func (s *InMemoryBlockingStateStore) List(ctx context.Context, blockedID string, service string) ([]*blocking.BlockingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*blocking.BlockingState, 0)
	for _, st := range s.states {
		if st.BlockedID != blockedID {
			continue
		}
		if service != "" && st.Service != service {
			continue
		}
		c := *st
		result = append(result, &c)
	}
	blocking.Sort(result)
	return result, nil
}

// Clear removes every record
func (s *InMemoryBlockingStateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = nil
	s.sequence = 0
}
