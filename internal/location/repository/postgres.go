package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	fleetdomain "fleet-tracker/internal/fleet/domain"
	"fleet-tracker/internal/location/domain"
)

const selectLastPosition = `SELECT driver_id, vehicle_id, lat, lon, altitude, accuracy, speed, source_seq, observed_at, recorded_at
	FROM last_positions`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a last-position repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UpsertLastPosition stores p when it is newer than the stored row. The worker may see
// events out of order after a rebalance, so the sequence guards the row. A sequence that
// went backwards with a newer observation time (the server restarted and its per-driver
// sequencing began again) is also accepted.
func (r *PostgresRepository) UpsertLastPosition(ctx context.Context, p *domain.LastPosition) (bool, error) {
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO last_positions (driver_id, vehicle_id, lat, lon, altitude, accuracy, speed, source_seq, observed_at, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (driver_id) DO UPDATE SET
		   vehicle_id = EXCLUDED.vehicle_id, lat = EXCLUDED.lat, lon = EXCLUDED.lon,
		   altitude = EXCLUDED.altitude, accuracy = EXCLUDED.accuracy, speed = EXCLUDED.speed,
		   source_seq = EXCLUDED.source_seq, observed_at = EXCLUDED.observed_at, recorded_at = EXCLUDED.recorded_at
		 WHERE last_positions.source_seq < EXCLUDED.source_seq
		    OR last_positions.observed_at < EXCLUDED.observed_at`,
		p.DriverID, nullVehicleID(p.VehicleID), p.Coords.Lat, p.Coords.Lon,
		p.Altitude, p.Accuracy, p.SpeedMetersPerSecond, int64(p.SourceSeq), p.ObservedAt, p.RecordedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetLastPosition returns the last position of driverID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetLastPosition(ctx context.Context, driverID fleetdomain.UserID) (*domain.LastPosition, error) {
	p, err := scanLastPosition(r.db.QueryRowContext(ctx, selectLastPosition+` WHERE driver_id = $1`, driverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// ListLastPositions returns every stored last position ordered by driver.
func (r *PostgresRepository) ListLastPositions(ctx context.Context) ([]*domain.LastPosition, error) {
	rows, err := r.db.QueryContext(ctx, selectLastPosition+` ORDER BY driver_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.LastPosition
	for rows.Next() {
		p, err := scanLastPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLastPosition(row rowScanner) (*domain.LastPosition, error) {
	var p domain.LastPosition
	var vehicle sql.NullInt64
	var altitude, accuracy, speed sql.NullFloat64
	var seq int64
	if err := row.Scan(&p.DriverID, &vehicle, &p.Coords.Lat, &p.Coords.Lon,
		&altitude, &accuracy, &speed, &seq, &p.ObservedAt, &p.RecordedAt); err != nil {
		return nil, err
	}
	p.VehicleID = fleetdomain.VehicleID(vehicle.Int64)
	p.Altitude = floatPtr(altitude)
	p.Accuracy = floatPtr(accuracy)
	p.SpeedMetersPerSecond = floatPtr(speed)
	p.SourceSeq = uint64(seq)
	return &p, nil
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullVehicleID(id fleetdomain.VehicleID) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}
