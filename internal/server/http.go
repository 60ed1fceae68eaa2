package server

import (
	"net/http"

	"fleet-tracker/internal/audit"
	audithandler "fleet-tracker/internal/audit/handler"
	fleetdomain "fleet-tracker/internal/fleet/domain"
	fleethandler "fleet-tracker/internal/fleet/handler"
	healthhandler "fleet-tracker/internal/health/handler"
	lochandler "fleet-tracker/internal/location/handler"
	"fleet-tracker/internal/server/middleware"
	"fleet-tracker/internal/telemetry"
)

// HTTPDeps holds the HTTP handlers and their shared collaborators.
type HTTPDeps struct {
	// Tokens validates access tokens. Required.
	Tokens middleware.TokenValidator
	// Health serves /healthz. If nil, /healthz is not registered.
	Health healthhandler.Checker
	// Locations serves the ingestion and latest-position endpoints. Required.
	Locations *lochandler.Handler
	// Viewers serves the websocket endpoint. Required.
	Viewers http.Handler
	// Vehicles serves the admin vehicle and user endpoints. If nil, they are not registered.
	Vehicles *fleethandler.Handler
	// Audit serves the audit log listing. If nil, it is not registered.
	Audit *audithandler.Handler
	// Feed serves the GTFS-realtime feed. If nil, it is not registered.
	Feed http.Handler
	// Events receives one http_request event per request. May be nil.
	Events telemetry.EventEmitter
}

// NewHTTPHandler builds the routed HTTP handler.
//
// Route → role mapping:
//   - GET  /healthz                          → public
//   - GET  /ws                               → any authenticated viewer (joins are policy-checked)
//   - POST /api/locations/update             → driver
//   - GET  /api/locations/latest/{driverId}  → admin, driver (self)
//   - /api/vehicles..., /api/users, /api/audit-logs, /api/feeds/vehicle-positions → admin
func NewHTTPHandler(deps HTTPDeps) http.Handler {
	mux := http.NewServeMux()
	authed := middleware.RequireAuth(deps.Tokens)
	admin := middleware.RequireRole(fleetdomain.RoleAdmin)

	route := func(pattern string, h http.Handler, roles ...fleetdomain.Role) {
		mws := []func(http.Handler) http.Handler{authed}
		if len(roles) > 0 {
			mws = append(mws, middleware.RequireRole(roles...))
		}
		mux.Handle(pattern, middleware.Chain(h, mws...))
	}

	if deps.Health != nil {
		mux.Handle("GET /healthz", healthhandler.Healthz(deps.Health))
	}
	route("GET /ws", deps.Viewers)
	route("POST /api/locations/update", http.HandlerFunc(deps.Locations.Update), fleetdomain.RoleDriver)
	route("GET /api/locations/latest/{driverId}", http.HandlerFunc(deps.Locations.Latest), fleetdomain.RoleAdmin, fleetdomain.RoleDriver)

	if v := deps.Vehicles; v != nil {
		route("GET /api/vehicles", http.HandlerFunc(v.ListVehicles), fleetdomain.RoleAdmin)
		route("POST /api/vehicles", http.HandlerFunc(v.CreateVehicle), fleetdomain.RoleAdmin)
		route("GET /api/vehicles/{id}", http.HandlerFunc(v.GetVehicle), fleetdomain.RoleAdmin)
		route("PUT /api/vehicles/{id}", http.HandlerFunc(v.UpdateVehicle), fleetdomain.RoleAdmin)
		route("DELETE /api/vehicles/{id}", http.HandlerFunc(v.DeleteVehicle), fleetdomain.RoleAdmin)
		route("POST /api/vehicles/{id}/assign", http.HandlerFunc(v.AssignEmployee), fleetdomain.RoleAdmin)
		route("GET /api/users", http.HandlerFunc(v.ListUsers), fleetdomain.RoleAdmin)
	}
	if deps.Audit != nil {
		mux.Handle("GET /api/audit-logs", middleware.Chain(http.HandlerFunc(deps.Audit.List), authed, admin))
	}
	if deps.Feed != nil {
		mux.Handle("GET /api/feeds/vehicle-positions", middleware.Chain(deps.Feed, authed, admin))
	}

	return middleware.Chain(mux,
		middleware.RequestTelemetry(deps.Events, map[string]bool{"/healthz": true}),
		auditClientIP,
	)
}

// auditClientIP stores the caller address for audit entries written further down.
func auditClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithClientIP(r.Context(), middleware.ClientIP(r))))
	})
}
