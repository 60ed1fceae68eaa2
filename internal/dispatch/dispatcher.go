// Package dispatch fans an accepted position fix out to the live sessions entitled to it.
package dispatch

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"go.opentelemetry.io/otel/metric"

	"fleet-tracker/internal/assignment"
	fleetdomain "fleet-tracker/internal/fleet/domain"
	locdomain "fleet-tracker/internal/location/domain"
	"fleet-tracker/internal/subscription"
	"fleet-tracker/internal/telemetry"
	teldomain "fleet-tracker/internal/telemetry/domain"
)

// DropReason says why a fix was not fanned out. The zero value means it was.
type DropReason string

const (
	DropNone              DropReason = ""
	DropNoVehicleAssigned DropReason = "no_vehicle_assigned"
	DropEncodeFailed      DropReason = "encode_failed"
)

// Report summarizes one dispatch. It is for observability only.
type Report struct {
	VehicleID             fleetdomain.VehicleID
	Dropped               DropReason
	ResolvedEmployeeCount int
	DeliveredCount        int
	FailedCount           int
}

// SnapshotSource publishes the current assignment snapshot.
type SnapshotSource interface {
	Snapshot() *assignment.Snapshot
}

// Fanouter delivers one payload to every live session of the given channels.
type Fanouter interface {
	Fanout(channels []subscription.Channel, payload []byte) subscription.FanoutResult
}

// Dispatcher resolves recipients for a fix and hands it to the subscription directory.
type Dispatcher struct {
	registry  SnapshotSource
	directory Fanouter
	events    telemetry.EventEmitter
	metrics   *instruments
}

// NewDispatcher returns a Dispatcher. events may be nil. A nil meter uses the global MeterProvider.
func NewDispatcher(registry SnapshotSource, directory Fanouter, events telemetry.EventEmitter, meter metric.Meter) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		directory: directory,
		events:    events,
		metrics:   newInstruments(meter),
	}
}

// Dispatch delivers fix to the employees assigned to the driver's vehicle and to the
// supervisory channel. It never blocks on a session and never returns an error: a driver
// without a vehicle is a normal transient state and per-session failures are only counted.
func (d *Dispatcher) Dispatch(ctx context.Context, fix locdomain.PositionFix) Report {
	report := d.dispatch(fix)
	d.metrics.record(ctx, report)

	switch {
	case report.Dropped != DropNone:
		log.Printf("dispatch: dropped fix driver=%s seq=%d: %s", fix.DriverID, fix.SourceSeq, report.Dropped)
		d.emit(ctx, teldomain.EventFixDropped, fix, report)
	case report.FailedCount > 0:
		d.emit(ctx, teldomain.EventDeliveryFailed, fix, report)
	}
	return report
}

func (d *Dispatcher) dispatch(fix locdomain.PositionFix) Report {
	// One snapshot for both lookups so a concurrent reassignment is seen entirely or not at all.
	snap := d.registry.Snapshot()

	vehicleID := fix.VehicleID
	if vehicleID == 0 {
		v, ok := snap.VehicleForDriver(fix.DriverID)
		if !ok {
			return Report{Dropped: DropNoVehicleAssigned}
		}
		vehicleID = v
	}
	recipients, ok := snap.Recipients(vehicleID)
	if !ok {
		return Report{VehicleID: vehicleID, Dropped: DropNoVehicleAssigned}
	}
	report := Report{VehicleID: vehicleID, ResolvedEmployeeCount: len(recipients.EmployeeIDs)}

	fix.VehicleID = vehicleID
	payload, err := EncodePushEvent(fix)
	if err != nil {
		log.Printf("dispatch: encode push event driver=%s: %v", fix.DriverID, err)
		report.Dropped = DropEncodeFailed
		return report
	}

	channels := make([]subscription.Channel, 0, len(recipients.EmployeeIDs)+1)
	for _, e := range recipients.EmployeeIDs {
		channels = append(channels, subscription.Employee(e))
	}
	if recipients.IncludeSupervisory {
		channels = append(channels, subscription.Supervisory())
	}
	res := d.directory.Fanout(channels, payload)
	report.DeliveredCount = res.Delivered
	report.FailedCount = res.Failed
	return report
}

type reportMetadata struct {
	Seq                   uint64     `json:"seq"`
	Reason                DropReason `json:"reason,omitempty"`
	ResolvedEmployeeCount int        `json:"resolvedEmployeeCount"`
	DeliveredCount        int        `json:"deliveredCount"`
	FailedCount           int        `json:"failedCount"`
}

func (d *Dispatcher) emit(ctx context.Context, eventType string, fix locdomain.PositionFix, r Report) {
	if d.events == nil {
		return
	}
	meta, _ := json.Marshal(reportMetadata{
		Seq:                   fix.SourceSeq,
		Reason:                r.Dropped,
		ResolvedEmployeeCount: r.ResolvedEmployeeCount,
		DeliveredCount:        r.DeliveredCount,
		FailedCount:           r.FailedCount,
	})
	ev := &teldomain.Event{
		EventType: eventType,
		Source:    "dispatch",
		DriverID:  fix.DriverID.String(),
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	if r.VehicleID != 0 {
		ev.VehicleID = r.VehicleID.String()
	}
	telemetry.EmitAsync(d.events, ctx, ev)
}
