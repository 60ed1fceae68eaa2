package repository

import (
	"context"

	"fleet-tracker/internal/policy/domain"
)

// Repository defines persistence for join policies.
type Repository interface {
	// ListEnabled returns enabled policies ordered by creation time.
	ListEnabled(ctx context.Context) ([]*domain.Policy, error)
	// Create persists p. The policy must have ID set.
	Create(ctx context.Context, p *domain.Policy) error
}
