package repository

import (
	"context"
	"database/sql"

	"fleet-tracker/internal/audit/domain"
	fleetdomain "fleet-tracker/internal/fleet/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log to the database. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	uid := sql.NullInt64{Int64: int64(a.UserID), Valid: a.UserID != 0}
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, uid, a.Action, a.Resource, a.IP, meta, a.CreatedAt)
	return err
}

// List returns audit logs matching f, newest first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, action, resource, ip, metadata, created_at FROM audit_logs
		 WHERE ($1 = 0 OR user_id = $1) AND ($2 = '' OR action = $2) AND ($3 = '' OR resource = $3)
		 ORDER BY created_at DESC, id
		 LIMIT $4 OFFSET $5`,
		f.UserID, f.Action, f.Resource, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		var uid sql.NullInt64
		var meta sql.NullString
		if err := rows.Scan(&a.ID, &uid, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.UserID = fleetdomain.UserID(uid.Int64)
		a.Metadata = meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
