// Package health tracks readiness of the server's dependencies and publishes it through the
// standard gRPC health service and the /healthz endpoint.
package health

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "fleet.Tracker"

// Pinger checks database reachability (e.g. db.Pinger).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the join policy evaluates (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Report is the result of one check. Failed components map to their error text.
type Report struct {
	Serving   bool              `json:"serving"`
	Failures  map[string]string `json:"failures,omitempty"`
	CheckedAt time.Time         `json:"checkedAt"`
}

// Checker runs the dependency checks. A nil pinger or policy is skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
	server *health.Server
	now    func() time.Time

	mu   sync.RWMutex
	last Report
}

// NewChecker returns a Checker that starts out serving.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	c := &Checker{
		pinger: pinger,
		policy: policy,
		server: health.NewServer(),
		now:    time.Now,
	}
	c.last = Report{Serving: true, CheckedAt: c.now().UTC()}
	c.setStatus(true)
	return c
}

// Server returns the gRPC health server; register it with healthpb.RegisterHealthServer.
func (c *Checker) Server() *health.Server { return c.server }

// Check runs every check once, updates the gRPC status, and returns the report.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	failures := map[string]string{}
	if c.pinger != nil {
		if err := c.pinger.Ping(ctx); err != nil {
			failures["database"] = err.Error()
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			failures["policy"] = err.Error()
		}
	}
	r := Report{Serving: len(failures) == 0, CheckedAt: c.now().UTC()}
	if !r.Serving {
		r.Failures = failures
	}

	c.mu.Lock()
	changed := c.last.Serving != r.Serving
	c.last = r
	c.mu.Unlock()
	if changed {
		log.Printf("health: serving=%v failures=%v", r.Serving, r.Failures)
	}
	c.setStatus(r.Serving)
	return r
}

// Last returns the most recent report.
func (c *Checker) Last() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Run checks every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	c.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so clients drain before the listener closes.
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}

func (c *Checker) setStatus(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	c.server.SetServingStatus("", st)
	c.server.SetServingStatus(ServiceName, st)
}
