// Package handler exposes the readiness report over HTTP.
package handler

import (
	"context"
	"net/http"

	"fleet-tracker/internal/health"
	"fleet-tracker/internal/server/middleware"
)

// Checker runs the readiness checks. *health.Checker implements it.
type Checker interface {
	Check(ctx context.Context) health.Report
}

// Healthz serves GET /healthz: 200 with the report when serving, 503 otherwise.
func Healthz(c Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())
		status := http.StatusOK
		if !report.Serving {
			status = http.StatusServiceUnavailable
		}
		middleware.WriteJSON(w, status, report)
	}
}
