// Package handler serves the driver ingestion endpoint and the last-known-position lookup.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"

	fleetdomain "fleet-tracker/internal/fleet/domain"
	"fleet-tracker/internal/geo"
	"fleet-tracker/internal/ingest"
	"fleet-tracker/internal/location/domain"
	"fleet-tracker/internal/location/repository"
	"fleet-tracker/internal/server/middleware"
)

// Ingestor accepts driver fixes. *ingest.Ingestor implements it.
type Ingestor interface {
	Ingest(ctx context.Context, driverID fleetdomain.UserID, raw ingest.RawFix) (ingest.Outcome, error)
}

// Handler implements the location endpoints. positions may be nil, in which case the
// latest-position lookup answers 503.
type Handler struct {
	ingestor  Ingestor
	positions repository.Repository
}

// NewHandler returns a Handler.
func NewHandler(ingestor Ingestor, positions repository.Repository) *Handler {
	return &Handler{ingestor: ingestor, positions: positions}
}

// legacyLocation is the {"latitude","longitude"} shape older driver apps send.
type legacyLocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type updateRequest struct {
	ingest.RawFix
	Location *legacyLocation `json:"location,omitempty"`
}

type updateResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

type validationBody struct {
	Error  string              `json:"error"`
	Fields []ingest.FieldError `json:"fields"`
}

const maxBodyBytes = 1 << 14

// Update handles POST /api/locations/update.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	var req updateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	raw := req.RawFix
	if raw.Coords.Lat == nil && raw.Coords.Lon == nil && req.Location != nil {
		raw.Coords = ingest.RawCoords{Lat: req.Location.Latitude, Lon: req.Location.Longitude}
	}

	out, err := h.ingestor.Ingest(r.Context(), id.UserID, raw)
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr):
		middleware.WriteJSON(w, http.StatusBadRequest, validationBody{Error: "invalid location", Fields: verr.Fields})
	case errors.Is(err, ingest.ErrStaleFix):
		middleware.WriteJSON(w, http.StatusOK, updateResponse{Success: true, Status: "dropped"})
	case err != nil:
		log.Printf("location: ingest driver=%s: %v", id.UserID, err)
		middleware.WriteError(w, http.StatusInternalServerError, "server error")
	case out.Dropped():
		middleware.WriteJSON(w, http.StatusOK, updateResponse{Success: true, Status: "dropped"})
	default:
		middleware.WriteJSON(w, http.StatusOK, updateResponse{Success: true, Status: "accepted"})
	}
}

type latestResponse struct {
	*domain.LastPosition
	*geo.Estimate
}

// Latest handles GET /api/locations/latest/{driverId}. Admins may read any driver,
// drivers only themselves.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	driverID, err := fleetdomain.ParseUserID(r.PathValue("driverId"))
	if err != nil || driverID <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid driver id")
		return
	}
	if id.Role != fleetdomain.RoleAdmin && id.UserID != driverID {
		middleware.WriteError(w, http.StatusForbidden, "forbidden")
		return
	}
	viewer, hasViewer, err := viewerPoint(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.positions == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "position store unavailable")
		return
	}
	lp, err := h.positions.GetLastPosition(r.Context(), driverID)
	if err != nil {
		log.Printf("location: latest driver=%s: %v", driverID, err)
		middleware.WriteError(w, http.StatusInternalServerError, "server error")
		return
	}
	if lp == nil {
		middleware.WriteError(w, http.StatusNotFound, "no position recorded for driver")
		return
	}
	resp := latestResponse{LastPosition: lp}
	if hasViewer {
		est := geo.Describe(geo.Point{Lat: lp.Coords.Lat, Lon: lp.Coords.Lon}, viewer, lp.SpeedMetersPerSecond)
		resp.Estimate = &est
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

var errViewerCoords = errors.New("lat and lon must be given together and be valid coordinates")

func viewerPoint(r *http.Request) (geo.Point, bool, error) {
	q := r.URL.Query()
	latS, lonS := q.Get("lat"), q.Get("lon")
	if latS == "" && lonS == "" {
		return geo.Point{}, false, nil
	}
	lat, err1 := strconv.ParseFloat(latS, 64)
	lon, err2 := strconv.ParseFloat(lonS, 64)
	if err1 != nil || err2 != nil || math.IsNaN(lat) || math.IsNaN(lon) {
		return geo.Point{}, false, errViewerCoords
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return geo.Point{}, false, errViewerCoords
	}
	return geo.Point{Lat: lat, Lon: lon}, true, nil
}
