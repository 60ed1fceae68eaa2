package audit

import (
	"context"
	"errors"
	"testing"

	"fleet-tracker/internal/audit/domain"
	auditrepo "fleet-tracker/internal/audit/repository"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) List(ctx context.Context, f auditrepo.Filter, limit, offset int32) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(ctx context.Context) string { return "192.168.1.1" })

	logger.LogEvent(context.Background(), 1, domain.ActionVehicleCreated, "vehicle:7", `{"licensePlate":"INSA-007"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.UserID != 1 {
		t.Errorf("user_id = %d, want 1", entry.UserID)
	}
	if entry.Action != domain.ActionVehicleCreated || entry.Resource != "vehicle:7" {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.Metadata == "" {
		t.Error("metadata should be kept")
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("entry CreatedAt should be set")
	}
}

func TestLogger_LogEvent_ContextIP(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, ContextIP)

	logger.LogEvent(WithClientIP(context.Background(), "10.1.2.3"), 1, domain.ActionVehicleDeleted, "vehicle:1", "")
	logger.LogEvent(context.Background(), 1, domain.ActionVehicleDeleted, "vehicle:2", "")

	if repo.entries[0].IP != "10.1.2.3" {
		t.Errorf("ip = %q, want 10.1.2.3", repo.entries[0].IP)
	}
	if repo.entries[1].IP != "unknown" {
		t.Errorf("ip without context value = %q, want unknown", repo.entries[1].IP)
	}
}

func TestLogger_LogEvent_NilIPExtractor(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil).LogEvent(context.Background(), 0, domain.ActionPolicyCreated, "policy", "")
	if len(repo.entries) != 1 || repo.entries[0].IP != "unknown" {
		t.Errorf("entries = %+v", repo.entries)
	}
}

func TestLogger_LogEvent_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("database error")}
	NewLogger(repo, nil).LogEvent(context.Background(), 1, domain.ActionVehicleUpdated, "vehicle:1", "")
	if len(repo.entries) != 0 {
		t.Errorf("expected 0 entries on error, got %d", len(repo.entries))
	}
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	NewLogger(nil, nil).LogEvent(context.Background(), 1, domain.ActionVehicleUpdated, "vehicle:1", "")
	var l *Logger
	l.LogEvent(context.Background(), 1, domain.ActionVehicleUpdated, "vehicle:1", "")
}
