// Package service applies vehicle and assignment changes to the store and then to the
// in-memory assignment registry, so dispatch sees a change before the request returns.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"fleet-tracker/internal/assignment"
	"fleet-tracker/internal/audit"
	auditdomain "fleet-tracker/internal/audit/domain"
	"fleet-tracker/internal/fleet/domain"
	"fleet-tracker/internal/fleet/repository"
)

// Sentinel errors for the vehicle service; the handler maps them to HTTP status codes.
var (
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrInvalidDriver   = errors.New("driverId must reference a user with role driver")
	ErrInvalidEmployee = errors.New("employeeId must reference a user with role employee")
	ErrAlreadyAssigned = repository.ErrAlreadyAssigned
	ErrConflict        = errors.New("license plate already in use")
)

// InvalidInputError lists the fields of a rejected VehicleInput.
type InvalidInputError struct {
	Fields map[string]string
}

func (e *InvalidInputError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, r := range e.Fields {
		parts = append(parts, f+": "+r)
	}
	return "invalid vehicle: " + strings.Join(parts, "; ")
}

// VehicleInput is the writable part of a vehicle.
type VehicleInput struct {
	Type         string         `json:"type" validate:"required,max=64"`
	LicensePlate string         `json:"licensePlate" validate:"required,max=32"`
	DriverID     *domain.UserID `json:"driverId,omitempty"`
}

// Registry is the part of the assignment registry the service mutates.
type Registry interface {
	Apply(m assignment.Mutation) error
	Resync(ctx context.Context, src assignment.Source) error
}

// VehicleService implements vehicle CRUD and employee assignment.
type VehicleService struct {
	// writeMu is held from the store write through the registry apply, so the registry
	// sees mutations in store commit order.
	writeMu sync.Mutex

	vehicles repository.VehicleRepository
	users    repository.UserRepository
	registry Registry
	audit    audit.AuditLogger
	validate *validator.Validate
}

// NewVehicleService returns a VehicleService. auditLogger may be nil.
func NewVehicleService(vehicles repository.VehicleRepository, users repository.UserRepository, registry Registry, auditLogger audit.AuditLogger) *VehicleService {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		return name
	})
	return &VehicleService{vehicles: vehicles, users: users, registry: registry, audit: auditLogger, validate: v}
}

// List returns every vehicle.
func (s *VehicleService) List(ctx context.Context) ([]*domain.Vehicle, error) {
	return s.vehicles.ListVehicles(ctx)
}

// Get returns the vehicle for id or ErrVehicleNotFound.
func (s *VehicleService) Get(ctx context.Context, id domain.VehicleID) (*domain.Vehicle, error) {
	v, err := s.vehicles.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVehicleNotFound
	}
	return v, nil
}

// ListUsers returns users with role, or all users when role is empty.
func (s *VehicleService) ListUsers(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return s.users.ListUsers(ctx, role)
}

// Create stores a new vehicle and registers it with its driver.
func (s *VehicleService) Create(ctx context.Context, actor domain.UserID, in VehicleInput) (*domain.Vehicle, error) {
	if err := s.check(ctx, in); err != nil {
		return nil, err
	}
	v := &domain.Vehicle{Type: strings.TrimSpace(in.Type), LicensePlate: strings.TrimSpace(in.LicensePlate), DriverID: in.DriverID}
	err := s.write(ctx, func() (assignment.Mutation, error) {
		if err := s.vehicles.CreateVehicle(ctx, v); err != nil {
			return nil, err
		}
		return assignment.VehicleCreated{VehicleID: v.ID, DriverID: v.DriverID}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, auditdomain.ActionVehicleCreated, v)
	return v, nil
}

// Update replaces type, license plate, and driver of vehicle id.
func (s *VehicleService) Update(ctx context.Context, actor domain.UserID, id domain.VehicleID, in VehicleInput) (*domain.Vehicle, error) {
	if err := s.check(ctx, in); err != nil {
		return nil, err
	}
	v := &domain.Vehicle{ID: id, Type: strings.TrimSpace(in.Type), LicensePlate: strings.TrimSpace(in.LicensePlate), DriverID: in.DriverID}
	err := s.write(ctx, func() (assignment.Mutation, error) {
		if err := s.vehicles.UpdateVehicle(ctx, v); err != nil {
			return nil, err
		}
		return assignment.VehicleUpdated{VehicleID: id, DriverID: v.DriverID}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, auditdomain.ActionVehicleUpdated, v)
	return s.Get(ctx, id)
}

// Delete removes vehicle id with its assignments.
func (s *VehicleService) Delete(ctx context.Context, actor domain.UserID, id domain.VehicleID) error {
	err := s.write(ctx, func() (assignment.Mutation, error) {
		if err := s.vehicles.DeleteVehicle(ctx, id); err != nil {
			return nil, err
		}
		return assignment.VehicleDeleted{VehicleID: id}, nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, actor, auditdomain.ActionVehicleDeleted, &domain.Vehicle{ID: id})
	return nil
}

// AssignEmployee assigns employeeID to vehicle id, moving them off any other vehicle.
func (s *VehicleService) AssignEmployee(ctx context.Context, actor domain.UserID, id domain.VehicleID, employeeID domain.UserID) (*domain.Vehicle, error) {
	if err := s.checkRole(ctx, employeeID, domain.RoleEmployee, ErrInvalidEmployee); err != nil {
		return nil, err
	}
	err := s.write(ctx, func() (assignment.Mutation, error) {
		if err := s.vehicles.AssignEmployee(ctx, id, employeeID); err != nil {
			return nil, err
		}
		return assignment.EmployeeAssigned{VehicleID: id, EmployeeID: employeeID}, nil
	})
	if err != nil {
		return nil, err
	}
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, auditdomain.ActionEmployeeAssigned, v)
	return v, nil
}

func (s *VehicleService) check(ctx context.Context, in VehicleInput) error {
	in.Type = strings.TrimSpace(in.Type)
	in.LicensePlate = strings.TrimSpace(in.LicensePlate)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate vehicle: %w", err)
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = "failed " + fe.Tag()
		}
		return &InvalidInputError{Fields: fields}
	}
	if in.DriverID != nil {
		return s.checkRole(ctx, *in.DriverID, domain.RoleDriver, ErrInvalidDriver)
	}
	return nil
}

func (s *VehicleService) checkRole(ctx context.Context, id domain.UserID, role domain.Role, errInvalid error) error {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("get user %s: %w", id, err)
	}
	if u == nil || u.Role != role {
		return errInvalid
	}
	return nil
}

// write runs commit against the store and applies the mutation it returns to the registry,
// both under writeMu. A store error is returned mapped; a registry rejection means the two
// disagree and the registry is resynced from the store.
func (s *VehicleService) write(ctx context.Context, commit func() (assignment.Mutation, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	m, err := commit()
	if err != nil {
		return mapRepoError(err)
	}
	if err := s.registry.Apply(m); err != nil {
		log.Printf("vehicle: registry rejected %s: %v, resyncing", m, err)
		if err := s.registry.Resync(ctx, s.vehicles); err != nil {
			log.Printf("vehicle: registry resync failed: %v", err)
		}
	}
	return nil
}

func (s *VehicleService) logAudit(ctx context.Context, actor domain.UserID, action string, v *domain.Vehicle) {
	if s.audit == nil {
		return
	}
	meta, _ := json.Marshal(struct {
		LicensePlate string          `json:"licensePlate,omitempty"`
		DriverID     *domain.UserID  `json:"driverId,omitempty"`
		Employees    []domain.UserID `json:"employees,omitempty"`
	}{v.LicensePlate, v.DriverID, v.AssignedEmployees})
	s.audit.LogEvent(ctx, actor, action, "vehicle:"+v.ID.String(), string(meta))
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrVehicleNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	}
	return err
}
