package repository

import (
	"context"

	fleetdomain "fleet-tracker/internal/fleet/domain"
	"fleet-tracker/internal/location/domain"
)

// Repository persists the last known position of each driver.
type Repository interface {
	// UpsertLastPosition stores p unless the stored row is newer. It reports whether p was stored.
	UpsertLastPosition(ctx context.Context, p *domain.LastPosition) (bool, error)
	// GetLastPosition returns the last position of driverID, or nil if none is stored.
	GetLastPosition(ctx context.Context, driverID fleetdomain.UserID) (*domain.LastPosition, error)
	ListLastPositions(ctx context.Context) ([]*domain.LastPosition, error)
}
