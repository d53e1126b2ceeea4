package blocking

import "context"

// Repository is the blocking state store. It only ever appends.
type Repository interface {
	Append(ctx context.Context, state *BlockingState) error

	// List returns the records of blockedID ordered by Less. An empty
	// service returns every service.
	List(ctx context.Context, blockedID string, service string) ([]*BlockingState, error)
}
