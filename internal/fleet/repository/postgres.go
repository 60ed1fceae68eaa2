package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"fleet-tracker/internal/db"
	"fleet-tracker/internal/fleet/domain"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a fleet repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListVehicles returns every vehicle with its driver and assigned employees, ordered by id.
func (r *PostgresRepository) ListVehicles(ctx context.Context) ([]*domain.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, license_plate, driver_id, created_at, updated_at FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Vehicle
	byID := make(map[domain.VehicleID]*domain.Vehicle)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		byID[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	erows, err := r.db.QueryContext(ctx,
		`SELECT vehicle_id, employee_id FROM vehicle_employees ORDER BY vehicle_id, employee_id`)
	if err != nil {
		return nil, err
	}
	defer erows.Close()
	for erows.Next() {
		var vid domain.VehicleID
		var eid domain.UserID
		if err := erows.Scan(&vid, &eid); err != nil {
			return nil, err
		}
		if v := byID[vid]; v != nil {
			v.AssignedEmployees = append(v.AssignedEmployees, eid)
		}
	}
	return out, erows.Err()
}

// GetVehicle returns the vehicle for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetVehicle(ctx context.Context, id domain.VehicleID) (*domain.Vehicle, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, type, license_plate, driver_id, created_at, updated_at FROM vehicles WHERE id = $1`, id)
	v, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT employee_id FROM vehicle_employees WHERE vehicle_id = $1 ORDER BY employee_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var eid domain.UserID
		if err := rows.Scan(&eid); err != nil {
			return nil, err
		}
		v.AssignedEmployees = append(v.AssignedEmployees, eid)
	}
	return v, rows.Err()
}

// CreateVehicle inserts v, taking its driver off any other vehicle.
func (r *PostgresRepository) CreateVehicle(ctx context.Context, v *domain.Vehicle) error {
	now := time.Now().UTC()
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if v.DriverID != nil {
			if err := detachDriver(ctx, tx, *v.DriverID, 0, now); err != nil {
				return err
			}
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO vehicles (type, license_plate, driver_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $4) RETURNING id`,
			v.Type, v.LicensePlate, nullUserID(v.DriverID), now).Scan(&v.ID)
	})
	if err != nil {
		return mapError(err)
	}
	v.CreatedAt, v.UpdatedAt = now, now
	v.AssignedEmployees = nil
	return nil
}

// UpdateVehicle updates type, license plate, and driver. Returns ErrNotFound for an unknown id.
func (r *PostgresRepository) UpdateVehicle(ctx context.Context, v *domain.Vehicle) error {
	now := time.Now().UTC()
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if v.DriverID != nil {
			if err := detachDriver(ctx, tx, *v.DriverID, v.ID, now); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE vehicles SET type = $2, license_plate = $3, driver_id = $4, updated_at = $5 WHERE id = $1`,
			v.ID, v.Type, v.LicensePlate, nullUserID(v.DriverID), now)
		if err != nil {
			return err
		}
		return expectOneRow(res)
	})
	if err != nil {
		return mapError(err)
	}
	v.UpdatedAt = now
	return nil
}

// DeleteVehicle removes the vehicle; its employee links cascade. Returns ErrNotFound for an unknown id.
func (r *PostgresRepository) DeleteVehicle(ctx context.Context, id domain.VehicleID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// AssignEmployee assigns employeeID to vehicleID, moving them off any other vehicle.
// Returns ErrNotFound for an unknown vehicle and ErrAlreadyAssigned for an existing pair.
func (r *PostgresRepository) AssignEmployee(ctx context.Context, vehicleID domain.VehicleID, employeeID domain.UserID) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var locked domain.VehicleID
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM vehicles WHERE id = $1 FOR UPDATE`, vehicleID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var current domain.VehicleID
		err = tx.QueryRowContext(ctx,
			`SELECT vehicle_id FROM vehicle_employees WHERE employee_id = $1`, employeeID).Scan(&current)
		switch {
		case err == nil && current == vehicleID:
			return ErrAlreadyAssigned
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM vehicle_employees WHERE employee_id = $1`, employeeID); err != nil {
				return err
			}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vehicle_employees (vehicle_id, employee_id, assigned_at) VALUES ($1, $2, $3)`,
			vehicleID, employeeID, now); err != nil {
			return mapError(err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE vehicles SET updated_at = $2 WHERE id = $1`, vehicleID, now)
		return err
	})
}

// GetUser returns the user for id, or nil if not found.
func (r *PostgresRepository) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, role, password_hash, created_at FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// ListUsers returns users ordered by id, filtered by role when role is non-empty.
func (r *PostgresRepository) ListUsers(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email, phone, role, password_hash, created_at FROM users
		 WHERE $1 = '' OR role = $1 ORDER BY id`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpsertUser inserts u or updates name, phone, role, and password hash of the user with the same email.
func (r *PostgresRepository) UpsertUser(ctx context.Context, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx,
		`INSERT INTO users (name, email, phone, role, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (email) DO UPDATE
		 SET name = EXCLUDED.name, phone = EXCLUDED.phone, role = EXCLUDED.role, password_hash = EXCLUDED.password_hash
		 RETURNING id, created_at`,
		u.Name, u.Email, u.Phone, string(u.Role), u.PasswordHash, u.CreatedAt).Scan(&u.ID, &u.CreatedAt)
}

// detachDriver clears driverID from every vehicle other than keep.
func detachDriver(ctx context.Context, tx *sql.Tx, driverID domain.UserID, keep domain.VehicleID, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE vehicles SET driver_id = NULL, updated_at = $3 WHERE driver_id = $1 AND id <> $2`,
		driverID, keep, now)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVehicle(row rowScanner) (*domain.Vehicle, error) {
	var v domain.Vehicle
	var driver sql.NullInt64
	if err := row.Scan(&v.ID, &v.Type, &v.LicensePlate, &driver, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if driver.Valid {
		id := domain.UserID(driver.Int64)
		v.DriverID = &id
	}
	return &v, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &role, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func nullUserID(id *domain.UserID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// mapError turns a unique violation into ErrConflict.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}
