package repository

import (
	"context"

	"fleet-tracker/internal/audit/domain"
)

// Filter narrows List. Zero fields match everything.
type Filter struct {
	UserID   int64
	Action   string
	Resource string
}

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// List returns audit logs newest first, paginated by limit and offset.
	List(ctx context.Context, f Filter, limit, offset int32) ([]*domain.AuditLog, error)
}
