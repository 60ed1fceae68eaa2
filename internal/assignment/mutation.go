package assignment

import (
	"fmt"

	"fleet-tracker/internal/fleet/domain"
)

// Mutation is a change pushed by the CRUD collaborator.
type Mutation interface {
	applyTo(s *Snapshot) error
	fmt.Stringer
}

// VehicleCreated registers a new vehicle with its optional driver and initial employees.
type VehicleCreated struct {
	VehicleID domain.VehicleID
	DriverID  *domain.UserID
	Employees []domain.UserID
}

func (m VehicleCreated) applyTo(s *Snapshot) error {
	if _, ok := s.vehicles[m.VehicleID]; ok {
		return fmt.Errorf("%w: %s", ErrVehicleExists, m.VehicleID)
	}
	s.putVehicle(m.VehicleID)
	if m.DriverID != nil {
		s.setDriver(m.VehicleID, *m.DriverID)
	}
	for _, e := range m.Employees {
		s.assignEmployee(m.VehicleID, e)
	}
	return nil
}

func (m VehicleCreated) String() string { return "vehicle_created:" + m.VehicleID.String() }

// VehicleUpdated reassigns a vehicle's driver. A nil DriverID leaves the vehicle without a driver.
type VehicleUpdated struct {
	VehicleID domain.VehicleID
	DriverID  *domain.UserID
}

func (m VehicleUpdated) applyTo(s *Snapshot) error {
	if _, ok := s.vehicles[m.VehicleID]; !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, m.VehicleID)
	}
	if m.DriverID == nil {
		s.clearDriver(m.VehicleID)
		return nil
	}
	s.setDriver(m.VehicleID, *m.DriverID)
	return nil
}

func (m VehicleUpdated) String() string { return "vehicle_updated:" + m.VehicleID.String() }

// EmployeeAssigned assigns an employee to a vehicle, moving them off any previous vehicle.
type EmployeeAssigned struct {
	VehicleID  domain.VehicleID
	EmployeeID domain.UserID
}

func (m EmployeeAssigned) applyTo(s *Snapshot) error {
	e, ok := s.vehicles[m.VehicleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, m.VehicleID)
	}
	if _, dup := e.employees[m.EmployeeID]; dup {
		return ErrDuplicateAssignment
	}
	s.assignEmployee(m.VehicleID, m.EmployeeID)
	return nil
}

func (m EmployeeAssigned) String() string {
	return "employee_assigned:" + m.VehicleID.String() + ":" + m.EmployeeID.String()
}

// VehicleDeleted removes a vehicle together with its driver and employee links.
type VehicleDeleted struct {
	VehicleID domain.VehicleID
}

func (m VehicleDeleted) applyTo(s *Snapshot) error {
	if _, ok := s.vehicles[m.VehicleID]; !ok {
		return fmt.Errorf("%w: %s", ErrVehicleNotFound, m.VehicleID)
	}
	s.deleteVehicle(m.VehicleID)
	return nil
}

func (m VehicleDeleted) String() string { return "vehicle_deleted:" + m.VehicleID.String() }
