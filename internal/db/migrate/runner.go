// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"fleet-tracker/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is what golang-migrate reports when there is nothing to apply. Run swallows it.
var ErrNoChange = migrate.ErrNoChange

// Run applies the embedded migrations in direction ("up" or "down") against dsn.
// Being already at the target version is not an error.
func Run(dsn string, direction string) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("migrate: DATABASE_URL is not set")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	apply := m.Up
	if direction == "down" {
		apply = m.Down
	}
	if err := apply(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	if v, dirty, err := m.Version(); err == nil {
		log.Printf("migrate: %s complete, version=%d dirty=%v", direction, v, dirty)
	} else if errors.Is(err, migrate.ErrNilVersion) {
		log.Printf("migrate: %s complete, no version applied", direction)
	}
	return nil
}
