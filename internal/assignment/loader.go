package assignment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fleet-tracker/internal/fleet/domain"
)

// Source is the persisted store the registry is loaded from.
type Source interface {
	// ListVehicles returns every vehicle with its driver and assigned employees.
	ListVehicles(ctx context.Context) ([]*domain.Vehicle, error)
}

// resyncAttempts bounds how often Resync retries a load that raced with a mutation.
const resyncAttempts = 5

// ErrResyncContended is returned by Resync when every attempt raced with a mutation.
var ErrResyncContended = errors.New("assignment: resync kept racing with mutations")

// Load replaces the registry contents with the current state of src unconditionally.
// Only for cold start, before any mutation can be applied; use Resync afterwards.
func (r *Registry) Load(ctx context.Context, src Source) error {
	vehicles, err := src.ListVehicles(ctx)
	if err != nil {
		return fmt.Errorf("assignment: load vehicles: %w", err)
	}
	r.Replace(NewSnapshot(vehicles))
	return nil
}

// Refresh reloads from src unless a mutation is applied while the store is being read.
// It reports whether the loaded snapshot was published.
func (r *Registry) Refresh(ctx context.Context, src Source) (bool, error) {
	generation := r.current.Load().generation
	vehicles, err := src.ListVehicles(ctx)
	if err != nil {
		return false, fmt.Errorf("assignment: refresh vehicles: %w", err)
	}
	return r.replaceIfGeneration(NewSnapshot(vehicles), generation), nil
}

// Resync reloads from src after the registry and the store disagreed. Unlike Load it never
// overwrites a mutation applied while the store was being read; such a load is retried.
func (r *Registry) Resync(ctx context.Context, src Source) error {
	for i := 0; i < resyncAttempts; i++ {
		published, err := r.Refresh(ctx, src)
		if err != nil {
			return err
		}
		if published {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrResyncContended
}

// Refresher periodically reloads the registry so changes written to the store by other
// processes become visible within one interval.
type Refresher struct {
	registry *Registry
	source   Source
	interval time.Duration
}

// NewRefresher returns a Refresher. interval <= 0 disables periodic refresh.
func NewRefresher(registry *Registry, source Source, interval time.Duration) *Refresher {
	return &Refresher{registry: registry, source: source, interval: interval}
}

// Run refreshes every interval until ctx is done.
func (f *Refresher) Run(ctx context.Context) {
	if f.interval <= 0 || f.source == nil {
		return
	}
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, f.interval)
			published, err := f.registry.Refresh(refreshCtx, f.source)
			cancel()
			if err != nil {
				log.Printf("assignment: periodic refresh failed: %v", err)
				continue
			}
			if !published {
				log.Printf("assignment: periodic refresh skipped, registry changed during load")
			}
		}
	}
}
