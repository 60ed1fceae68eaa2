package telemetry

import (
	"context"
	"errors"

	"fleet-tracker/internal/telemetry/domain"
)

// EventEmitter emits telemetry events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// Tee returns an EventEmitter that emits each event to every non-nil emitter in order.
// All emitters are tried; their errors are joined.
func Tee(emitters ...EventEmitter) EventEmitter {
	var live []EventEmitter
	for _, e := range emitters {
		if e != nil {
			live = append(live, e)
		}
	}
	return tee(live)
}

type tee []EventEmitter

func (t tee) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range t {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
