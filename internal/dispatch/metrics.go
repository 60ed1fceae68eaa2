package dispatch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fleet-tracker/dispatch"

type instruments struct {
	dispatched metric.Int64Counter
	dropped    metric.Int64Counter
	delivered  metric.Int64Counter
	failed     metric.Int64Counter
}

// newInstruments creates the dispatcher counters on meter, or on the global MeterProvider when meter is nil.
// Instrument creation errors leave a no-op counter in place.
func newInstruments(meter metric.Meter) *instruments {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	in := &instruments{}
	in.dispatched, _ = meter.Int64Counter("fleet.fixes.dispatched",
		metric.WithDescription("Position fixes fanned out to at least the supervisory channel."))
	in.dropped, _ = meter.Int64Counter("fleet.fixes.dropped",
		metric.WithDescription("Position fixes dropped before fan-out."))
	in.delivered, _ = meter.Int64Counter("fleet.deliveries.succeeded",
		metric.WithDescription("Push frames queued to viewer sessions."))
	in.failed, _ = meter.Int64Counter("fleet.deliveries.failed",
		metric.WithDescription("Push frames a viewer session could not accept."))
	return in
}

func (in *instruments) record(ctx context.Context, r Report) {
	if r.Dropped != DropNone {
		if in.dropped != nil {
			in.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(r.Dropped))))
		}
		return
	}
	if in.dispatched != nil {
		in.dispatched.Add(ctx, 1)
	}
	if in.delivered != nil && r.DeliveredCount > 0 {
		in.delivered.Add(ctx, int64(r.DeliveredCount))
	}
	if in.failed != nil && r.FailedCount > 0 {
		in.failed.Add(ctx, int64(r.FailedCount))
	}
}
