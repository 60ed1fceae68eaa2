// Package ingest validates driver position reports, enforces per-driver sequencing, and
// forwards accepted fixes to the dispatcher.
package ingest

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"fleet-tracker/internal/dispatch"
	fleetdomain "fleet-tracker/internal/fleet/domain"
	locdomain "fleet-tracker/internal/location/domain"
	"fleet-tracker/internal/telemetry"
	teldomain "fleet-tracker/internal/telemetry/domain"
)

// Dispatcher receives accepted fixes. It must not block.
type Dispatcher interface {
	Dispatch(ctx context.Context, fix locdomain.PositionFix) dispatch.Report
}

// Outcome is the result of an accepted fix.
type Outcome struct {
	Fix    locdomain.PositionFix
	Report dispatch.Report
}

// Dropped reports whether the dispatcher dropped the fix.
func (o Outcome) Dropped() bool { return o.Report.Dropped != dispatch.DropNone }

// lane is the per-driver sequencing state.
type lane struct {
	mu       sync.Mutex
	lastSeen uint64
}

// Ingestor is the driver-facing entry point of the fan-out engine.
type Ingestor struct {
	dispatcher Dispatcher
	validate   *validator.Validate
	now        func() time.Time
	lanes      sync.Map // fleetdomain.UserID -> *lane

	// positions receives every accepted fix (e.g. Kafka for the last-position worker).
	positions telemetry.EventEmitter
	// events receives operational events such as stale fixes (e.g. OTel logs).
	events telemetry.EventEmitter
}

// NewIngestor returns an Ingestor forwarding to dispatcher. positions and events may be nil;
// now defaults to time.Now.
func NewIngestor(dispatcher Dispatcher, positions, events telemetry.EventEmitter, now func() time.Time) *Ingestor {
	if now == nil {
		now = time.Now
	}
	return &Ingestor{
		dispatcher: dispatcher,
		validate:   newValidator(),
		now:        now,
		positions:  positions,
		events:     events,
	}
}

func (in *Ingestor) lane(driverID fleetdomain.UserID) *lane {
	if l, ok := in.lanes.Load(driverID); ok {
		return l.(*lane)
	}
	l, _ := in.lanes.LoadOrStore(driverID, &lane{})
	return l.(*lane)
}

// Ingest validates raw for the authenticated driverID and dispatches it.
//
// It returns a *ValidationError for malformed input (including a body driverId that is not
// the caller) and ErrStaleFix when raw.Seq is not above the driver's last accepted sequence.
// A fix without Seq gets the next sequence of its driver. A fix the dispatcher drops is not
// an error; see Outcome.Dropped.
func (in *Ingestor) Ingest(ctx context.Context, driverID fleetdomain.UserID, raw RawFix) (Outcome, error) {
	if err := validate(in.validate, driverID, raw); err != nil {
		return Outcome{}, err
	}

	l := in.lane(driverID)
	// Held across Dispatch so one driver's fixes leave in sequence order.
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.lastSeen + 1
	if raw.Seq != nil {
		seq = *raw.Seq
		if seq <= l.lastSeen {
			log.Printf("ingest: stale fix driver=%s seq=%d last=%d", driverID, seq, l.lastSeen)
			in.emitStale(ctx, driverID, seq, l.lastSeen)
			return Outcome{}, ErrStaleFix
		}
	}
	l.lastSeen = seq

	fix := locdomain.PositionFix{
		DriverID:             driverID,
		Coords:               locdomain.Coords{Lat: *raw.Coords.Lat, Lon: *raw.Coords.Lon},
		Altitude:             raw.Altitude,
		Accuracy:             raw.Accuracy,
		SpeedMetersPerSecond: raw.Speed,
		SourceSeq:            seq,
		ObservedAt:           in.now().UTC(),
	}
	report := in.dispatcher.Dispatch(ctx, fix)
	fix.VehicleID = report.VehicleID

	in.publish(ctx, fix)
	return Outcome{Fix: fix, Report: report}, nil
}

// LastSeen returns the last accepted sequence of driverID, or 0.
func (in *Ingestor) LastSeen(driverID fleetdomain.UserID) uint64 {
	v, ok := in.lanes.Load(driverID)
	if !ok {
		return 0
	}
	l := v.(*lane)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeen
}

// PositionFixEvent builds the event published for an accepted fix. The metadata is the
// LastPosition JSON the position worker stores.
func PositionFixEvent(fix locdomain.PositionFix) (*teldomain.Event, error) {
	meta, err := json.Marshal(locdomain.LastPositionFromFix(fix))
	if err != nil {
		return nil, err
	}
	ev := &teldomain.Event{
		EventType: teldomain.EventPositionFix,
		Source:    "ingest",
		DriverID:  fix.DriverID.String(),
		Metadata:  meta,
		CreatedAt: fix.ObservedAt,
	}
	if fix.VehicleID != 0 {
		ev.VehicleID = fix.VehicleID.String()
	}
	return ev, nil
}

func (in *Ingestor) publish(ctx context.Context, fix locdomain.PositionFix) {
	if in.positions == nil {
		return
	}
	ev, err := PositionFixEvent(fix)
	if err != nil {
		log.Printf("ingest: encode position event driver=%s: %v", fix.DriverID, err)
		return
	}
	telemetry.EmitAsync(in.positions, ctx, ev)
}

func (in *Ingestor) emitStale(ctx context.Context, driverID fleetdomain.UserID, seq, lastSeen uint64) {
	if in.events == nil {
		return
	}
	meta, _ := json.Marshal(map[string]uint64{"seq": seq, "lastSeen": lastSeen})
	telemetry.EmitAsync(in.events, ctx, &teldomain.Event{
		EventType: teldomain.EventFixStale,
		Source:    "ingest",
		DriverID:  driverID.String(),
		Metadata:  meta,
		CreatedAt: in.now().UTC(),
	})
}
