// Package handler serves the admin vehicle and user endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"fleet-tracker/internal/fleet/domain"
	"fleet-tracker/internal/fleet/service"
	"fleet-tracker/internal/server/middleware"
)

// VehicleService is the vehicle use-case layer. *service.VehicleService implements it.
type VehicleService interface {
	List(ctx context.Context) ([]*domain.Vehicle, error)
	Get(ctx context.Context, id domain.VehicleID) (*domain.Vehicle, error)
	Create(ctx context.Context, actor domain.UserID, in service.VehicleInput) (*domain.Vehicle, error)
	Update(ctx context.Context, actor domain.UserID, id domain.VehicleID, in service.VehicleInput) (*domain.Vehicle, error)
	Delete(ctx context.Context, actor domain.UserID, id domain.VehicleID) error
	AssignEmployee(ctx context.Context, actor domain.UserID, id domain.VehicleID, employeeID domain.UserID) (*domain.Vehicle, error)
	ListUsers(ctx context.Context, role domain.Role) ([]*domain.User, error)
}

// Handler implements the vehicle and user HTTP endpoints.
type Handler struct {
	svc VehicleService
}

// NewHandler returns a Handler backed by svc.
func NewHandler(svc VehicleService) *Handler {
	return &Handler{svc: svc}
}

type vehicleJSON struct {
	ID                domain.VehicleID `json:"id"`
	Type              string           `json:"type"`
	LicensePlate      string           `json:"licensePlate"`
	DriverID          *domain.UserID   `json:"driverId"`
	AssignedEmployees []domain.UserID  `json:"assignedEmployees"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

func toVehicleJSON(v *domain.Vehicle) vehicleJSON {
	emps := v.AssignedEmployees
	if emps == nil {
		emps = []domain.UserID{}
	}
	return vehicleJSON{
		ID:                v.ID,
		Type:              v.Type,
		LicensePlate:      v.LicensePlate,
		DriverID:          v.DriverID,
		AssignedEmployees: emps,
		CreatedAt:         v.CreatedAt,
		UpdatedAt:         v.UpdatedAt,
	}
}

// userJSON never carries the password hash.
type userJSON struct {
	ID    domain.UserID `json:"id"`
	Name  string        `json:"name"`
	Email string        `json:"email"`
	Phone string        `json:"phone,omitempty"`
	Role  domain.Role   `json:"role"`
}

// ListVehicles handles GET /api/vehicles.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, "list vehicles", err)
		return
	}
	out := make([]vehicleJSON, len(vehicles))
	for i, v := range vehicles {
		out[i] = toVehicleJSON(v)
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// GetVehicle handles GET /api/vehicles/{id}.
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := vehicleID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get vehicle", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toVehicleJSON(v))
}

// CreateVehicle handles POST /api/vehicles.
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var in service.VehicleInput
	if !decode(w, r, &in) {
		return
	}
	v, err := h.svc.Create(r.Context(), actor(r), in)
	if err != nil {
		h.fail(w, "create vehicle", err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toVehicleJSON(v))
}

// UpdateVehicle handles PUT /api/vehicles/{id}.
func (h *Handler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := vehicleID(w, r)
	if !ok {
		return
	}
	var in service.VehicleInput
	if !decode(w, r, &in) {
		return
	}
	v, err := h.svc.Update(r.Context(), actor(r), id, in)
	if err != nil {
		h.fail(w, "update vehicle", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toVehicleJSON(v))
}

// DeleteVehicle handles DELETE /api/vehicles/{id}.
func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := vehicleID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actor(r), id); err != nil {
		h.fail(w, "delete vehicle", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "Vehicle deleted successfully"})
}

type assignRequest struct {
	EmployeeID *domain.UserID `json:"employeeId"`
}

// AssignEmployee handles POST /api/vehicles/{id}/assign.
func (h *Handler) AssignEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := vehicleID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if !decode(w, r, &req) {
		return
	}
	if req.EmployeeID == nil {
		middleware.WriteError(w, http.StatusBadRequest, "employeeId is required")
		return
	}
	v, err := h.svc.AssignEmployee(r.Context(), actor(r), id, *req.EmployeeID)
	if err != nil {
		h.fail(w, "assign employee", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toVehicleJSON(v))
}

// ListUsers handles GET /api/users?role=.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := domain.Role(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "invalid role")
		return
	}
	users, err := h.svc.ListUsers(r.Context(), role)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	out := make([]userJSON, len(users))
	for i, u := range users {
		out[i] = userJSON{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Role: u.Role}
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var inv *service.InvalidInputError
	switch {
	case errors.As(err, &inv):
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Error: "invalid vehicle", Fields: inv.Fields})
	case errors.Is(err, service.ErrInvalidDriver), errors.Is(err, service.ErrInvalidEmployee):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrVehicleNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAlreadyAssigned), errors.Is(err, service.ErrConflict):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("vehicle: %s: %v", op, err)
		middleware.WriteError(w, http.StatusInternalServerError, "server error")
	}
}

func actor(r *http.Request) domain.UserID {
	id, _ := middleware.IdentityFrom(r.Context())
	return id.UserID
}

func vehicleID(w http.ResponseWriter, r *http.Request) (domain.VehicleID, bool) {
	n, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || n <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid vehicle id")
		return 0, false
	}
	return domain.VehicleID(n), true
}

const maxBodyBytes = 1 << 16

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}
