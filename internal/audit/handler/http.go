// Package handler serves the audit log over HTTP for admins.
package handler

import (
	"log"
	"net/http"
	"strconv"

	"fleet-tracker/internal/audit/domain"
	auditrepo "fleet-tracker/internal/audit/repository"
	"fleet-tracker/internal/server/middleware"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Handler lists audit logs.
type Handler struct {
	repo auditrepo.Repository
}

// NewHandler returns an audit Handler backed by repo.
func NewHandler(repo auditrepo.Repository) *Handler {
	return &Handler{repo: repo}
}

type listResponse struct {
	Logs   []*domain.AuditLog `json:"logs"`
	Limit  int32              `json:"limit"`
	Offset int32              `json:"offset"`
}

// List handles GET /api/audit-logs?limit=&offset=&userId=&action=&resource=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultPageSize)
	if err != nil || limit < 1 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	userID, err := intParam(q.Get("userId"), 0)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid userId")
		return
	}
	f := auditrepo.Filter{UserID: userID, Action: q.Get("action"), Resource: q.Get("resource")}
	logs, err := h.repo.List(r.Context(), f, int32(limit), int32(offset))
	if err != nil {
		log.Printf("audit: list: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "server error")
		return
	}
	if logs == nil {
		logs = []*domain.AuditLog{}
	}
	middleware.WriteJSON(w, http.StatusOK, listResponse{Logs: logs, Limit: int32(limit), Offset: int32(offset)})
}

func intParam(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
