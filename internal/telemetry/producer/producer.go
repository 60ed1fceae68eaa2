// Package producer publishes position and operational events to the fleet event stream.
package producer

import (
	"context"

	"fleet-tracker/internal/telemetry/domain"
)

// Producer is a closable event sink. The server publishes position_fix events through it
// for the position worker; publishing is best-effort and never fails a driver request.
type Producer interface {
	Emit(ctx context.Context, event *domain.Event) error
	Close() error
}

var _ Producer = (*KafkaProducer)(nil)
