// Package feed publishes the last known driver positions as a GTFS-realtime
// VehiclePositions feed.
package feed

import (
	"context"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	fleetdomain "fleet-tracker/internal/fleet/domain"
	locdomain "fleet-tracker/internal/location/domain"
	"fleet-tracker/internal/server/middleware"
)

const gtfsRealtimeVersion = "2.0"

// PositionLister lists the last known position of every driver.
type PositionLister interface {
	ListLastPositions(ctx context.Context) ([]*locdomain.LastPosition, error)
}

// VehicleLister lists vehicles; used for labels and license plates.
type VehicleLister interface {
	ListVehicles(ctx context.Context) ([]*fleetdomain.Vehicle, error)
}

// Build returns a full-dataset FeedMessage with one entity per position. Positions without a
// vehicle are keyed by driver. vehicles may be nil.
func Build(positions []*locdomain.LastPosition, vehicles map[fleetdomain.VehicleID]*fleetdomain.Vehicle, now time.Time) *gtfs.FeedMessage {
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
	}
	sorted := append([]*locdomain.LastPosition(nil), positions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DriverID < sorted[j].DriverID })

	for _, p := range sorted {
		if p == nil {
			continue
		}
		desc := &gtfs.VehicleDescriptor{}
		entityID := "driver-" + p.DriverID.String()
		if p.VehicleID != 0 {
			entityID = "vehicle-" + p.VehicleID.String()
			desc.Id = proto.String(p.VehicleID.String())
			if v, ok := vehicles[p.VehicleID]; ok {
				desc.Label = proto.String(v.Type)
				desc.LicensePlate = proto.String(v.LicensePlate)
			}
		}
		pos := &gtfs.Position{
			Latitude:  proto.Float32(float32(p.Coords.Lat)),
			Longitude: proto.Float32(float32(p.Coords.Lon)),
		}
		if p.SpeedMetersPerSecond != nil {
			pos.Speed = proto.Float32(float32(*p.SpeedMetersPerSecond))
		}
		msg.Entity = append(msg.Entity, &gtfs.FeedEntity{
			Id: proto.String(entityID),
			Vehicle: &gtfs.VehiclePosition{
				Vehicle:   desc,
				Position:  pos,
				Timestamp: proto.Uint64(uint64(p.ObservedAt.Unix())),
			},
		})
	}
	return msg
}

// Handler serves GET /api/feeds/vehicle-positions.
type Handler struct {
	positions PositionLister
	vehicles  VehicleLister
	now       func() time.Time
}

// NewHandler returns a feed Handler. vehicles may be nil.
func NewHandler(positions PositionLister, vehicles VehicleLister) *Handler {
	return &Handler{positions: positions, vehicles: vehicles, now: time.Now}
}

// ServeHTTP writes the feed as protobuf, or as JSON with ?format=json.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	positions, err := h.positions.ListLastPositions(ctx)
	if err != nil {
		log.Printf("feed: list positions: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "server error")
		return
	}
	var byID map[fleetdomain.VehicleID]*fleetdomain.Vehicle
	if h.vehicles != nil {
		vs, err := h.vehicles.ListVehicles(ctx)
		if err != nil {
			// Labels are optional; serve positions without them.
			log.Printf("feed: list vehicles: %v", err)
		}
		byID = make(map[fleetdomain.VehicleID]*fleetdomain.Vehicle, len(vs))
		for _, v := range vs {
			byID[v.ID] = v
		}
	}
	msg := Build(positions, byID, h.now())

	if r.URL.Query().Get("format") == "json" {
		body, err := protojson.Marshal(msg)
		if err != nil {
			log.Printf("feed: encode json: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, "server error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
		return
	}
	body, err := proto.Marshal(msg)
	if err != nil {
		log.Printf("feed: encode protobuf: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "server error")
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	_, _ = w.Write(body)
}
