// Package worker records accepted position fixes, consumed from Kafka, as each driver's
// last known position.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"fleet-tracker/internal/location/domain"
	"fleet-tracker/internal/location/repository"
	teldomain "fleet-tracker/internal/telemetry/domain"
)

// Reader is the consuming side of the position topic. *kafka.Reader implements it.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// LogPusher forwards raw events to a log store. *loki.Client implements it.
type LogPusher interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

// Worker upserts last positions and optionally mirrors every event to a LogPusher.
type Worker struct {
	store repository.Repository
	logs  LogPusher
}

// New returns a Worker. logs may be nil.
func New(store repository.Repository, logs LogPusher) *Worker {
	return &Worker{store: store, logs: logs}
}

// Handle processes one message value. Events other than position_fix are only forwarded
// to the log store. An older fix than the stored one is not an error.
func (w *Worker) Handle(ctx context.Context, value []byte) error {
	if w.logs != nil {
		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := w.logs.PushEventJSON(pushCtx, value); err != nil {
			log.Printf("worker: loki push failed: %v", err)
		}
		cancel()
	}

	var ev teldomain.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if ev.EventType != teldomain.EventPositionFix {
		return nil
	}
	var lp domain.LastPosition
	if err := json.Unmarshal(ev.Metadata, &lp); err != nil {
		return fmt.Errorf("decode position: %w", err)
	}
	if lp.DriverID <= 0 {
		return errors.New("position without driver")
	}
	stored, err := w.store.UpsertLastPosition(ctx, &lp)
	if err != nil {
		return fmt.Errorf("upsert driver=%s: %w", lp.DriverID, err)
	}
	if !stored {
		log.Printf("worker: kept newer position driver=%s seq=%d", lp.DriverID, lp.SourceSeq)
	}
	return nil
}

// Run consumes r until ctx is done. Bad messages are logged and skipped.
func (w *Worker) Run(ctx context.Context, r Reader) error {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("worker: kafka read error: %v", err)
			continue
		}
		if err := w.Handle(ctx, msg.Value); err != nil {
			log.Printf("worker: offset %d: %v", msg.Offset, err)
		}
	}
}
