package domain

import (
	"strconv"
	"time"
)

// UserID identifies an admin, driver, or employee account.
type UserID int64

// String returns the decimal form used in JWT subjects and log lines.
func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseUserID parses the decimal form produced by String.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return UserID(n), nil
}

// VehicleID identifies a vehicle.
type VehicleID int64

func (id VehicleID) String() string { return strconv.FormatInt(int64(id), 10) }

// Role is the account role asserted by the auth collaborator.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDriver   Role = "driver"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDriver, RoleEmployee:
		return true
	}
	return false
}

// User is the subset of the account record the tracker reads.
type User struct {
	ID           UserID
	Name         string
	Email        string
	Phone        string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// Vehicle is a fleet vehicle with at most one driver and a set of assigned employees.
type Vehicle struct {
	ID                VehicleID
	Type              string
	LicensePlate      string
	DriverID          *UserID // nil when no driver is assigned
	AssignedEmployees []UserID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasEmployee reports whether employeeID is assigned to v.
func (v *Vehicle) HasEmployee(employeeID UserID) bool {
	for _, e := range v.AssignedEmployees {
		if e == employeeID {
			return true
		}
	}
	return false
}
