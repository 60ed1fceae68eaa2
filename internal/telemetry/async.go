package telemetry

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"fleet-tracker/internal/telemetry/domain"
)

const (
	emitTimeout = 5 * time.Second
	// maxInFlight caps concurrent async emits. Fixes arrive at fleet rate, so a stalled
	// exporter must not turn into unbounded goroutines.
	maxInFlight = 1024
)

// ShutdownDrainDuration is how long to wait after the listeners stop before shutting down
// the OTel providers and the Kafka writer. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

var (
	inFlight = make(chan struct{}, maxInFlight)
	shed     atomic.Uint64
)

// EmitAsync emits event in a goroutine with its own timeout; request cancellation does not
// abort it. When maxInFlight emits are already running the event is shed and counted.
// emitter and event may be nil.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	select {
	case inFlight <- struct{}{}:
	default:
		if n := shed.Add(1); n == 1 || n%1000 == 0 {
			log.Printf("telemetry: emit backlog full, shed %d events so far (%s)", n, event.EventType)
		}
		return
	}
	go func() {
		defer func() { <-inFlight }()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit failed (%s driver=%s): %v", event.EventType, event.DriverID, err)
		}
	}()
}

// Shed returns how many events EmitAsync dropped because the backlog was full.
func Shed() uint64 { return shed.Load() }
