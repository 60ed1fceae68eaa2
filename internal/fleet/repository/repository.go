package repository

import (
	"context"
	"errors"

	"fleet-tracker/internal/fleet/domain"
)

var (
	// ErrNotFound is returned when a vehicle to mutate does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyAssigned is returned when the employee is already assigned to the vehicle.
	ErrAlreadyAssigned = errors.New("employee already assigned to this vehicle")
	// ErrConflict is returned on a unique violation (e.g. a license plate or email already in use).
	ErrConflict = errors.New("already in use")
)

// VehicleRepository persists vehicles and their driver and employee assignments.
// Driver and employee moves follow the registry: assigning someone to a vehicle detaches
// them from their previous one in the same transaction.
type VehicleRepository interface {
	ListVehicles(ctx context.Context) ([]*domain.Vehicle, error)
	// GetVehicle returns the vehicle for id, or nil if not found.
	GetVehicle(ctx context.Context, id domain.VehicleID) (*domain.Vehicle, error)
	// CreateVehicle inserts v and sets its ID and timestamps.
	CreateVehicle(ctx context.Context, v *domain.Vehicle) error
	// UpdateVehicle updates type, license plate, and driver of v.
	UpdateVehicle(ctx context.Context, v *domain.Vehicle) error
	DeleteVehicle(ctx context.Context, id domain.VehicleID) error
	AssignEmployee(ctx context.Context, vehicleID domain.VehicleID, employeeID domain.UserID) error
}

// UserRepository reads and seeds the accounts the tracker refers to.
type UserRepository interface {
	// GetUser returns the user for id, or nil if not found.
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
	// ListUsers returns users, filtered by role when role is non-empty.
	ListUsers(ctx context.Context, role domain.Role) ([]*domain.User, error)
	// UpsertUser inserts u or updates the user with the same email, and sets u.ID.
	UpsertUser(ctx context.Context, u *domain.User) error
}
