// Package engine decides which viewers may join which delivery channel, using OPA Rego.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/open-policy-agent/opa/v1/rego"

	fleetdomain "fleet-tracker/internal/fleet/domain"
	"fleet-tracker/internal/policy/repository"
	"fleet-tracker/internal/subscription"
)

const allowQuery = "data.fleet.subscription.allow"

// Default Rego policy: admins may watch everything, employees only their own channel,
// drivers nothing.
const defaultRegoPolicy = `package fleet.subscription

default allow := false

allow if {
	input.user.role == "admin"
}

allow if {
	input.user.role == "employee"
	input.channel.kind == "employee"
	input.channel.employee_id == input.user.id
}
`

// JoinRequest is one viewer asking to join one channel.
type JoinRequest struct {
	UserID  fleetdomain.UserID
	Role    fleetdomain.Role
	Channel subscription.Channel
}

// Evaluator authorizes channel joins.
type Evaluator interface {
	AllowJoin(ctx context.Context, req JoinRequest) (bool, error)
}

// OPAEvaluator evaluates the join policy with an in-process OPA engine. Enabled policies
// from the repository replace the default policy; if they fail to compile the default
// policy stays in effect.
type OPAEvaluator struct {
	policyRepo repository.Repository

	mu    sync.RWMutex
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the join policy. policyRepo may be nil.
func NewOPAEvaluator(ctx context.Context, policyRepo repository.Repository) (*OPAEvaluator, error) {
	e := &OPAEvaluator{policyRepo: policyRepo}
	q, err := prepare(ctx, []string{defaultRegoPolicy})
	if err != nil {
		return nil, fmt.Errorf("policy: compile default policy: %w", err)
	}
	e.query = q
	if err := e.Reload(ctx); err != nil {
		log.Printf("policy: %v, using default policy", err)
	}
	return e, nil
}

// Reload recompiles the policy from the repository. On error the current policy is kept.
func (e *OPAEvaluator) Reload(ctx context.Context) error {
	if e.policyRepo == nil {
		return nil
	}
	stored, err := e.policyRepo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}
	modules := make([]string, 0, len(stored))
	for _, p := range stored {
		if p.Enabled && p.Rules != "" {
			modules = append(modules, p.Rules)
		}
	}
	if len(modules) == 0 {
		modules = []string{defaultRegoPolicy}
	}
	q, err := prepare(ctx, modules)
	if err != nil {
		return fmt.Errorf("compile stored policies: %w", err)
	}
	e.mu.Lock()
	e.query = q
	e.mu.Unlock()
	return nil
}

func prepare(ctx context.Context, modules []string) (rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){rego.Query(allowQuery)}
	for i, m := range modules {
		opts = append(opts, rego.Module(fmt.Sprintf("policy_%d.rego", i), m))
	}
	return rego.New(opts...).PrepareForEval(ctx)
}

// AllowJoin reports whether req may join its channel. Evaluation errors deny.
func (e *OPAEvaluator) AllowJoin(ctx context.Context, req JoinRequest) (bool, error) {
	e.mu.RLock()
	q := e.query
	e.mu.RUnlock()

	rs, err := q.Eval(ctx, rego.EvalInput(buildInput(req)))
	if err != nil {
		return false, fmt.Errorf("policy: eval join: %w", err)
	}
	return rs.Allowed(), nil
}

// HealthCheck verifies that the loaded policy evaluates. Does not call the policy repo or database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	e.mu.RLock()
	q := e.query
	e.mu.RUnlock()
	rs, err := q.Eval(ctx, rego.EvalInput(buildInput(JoinRequest{
		Role:    fleetdomain.RoleAdmin,
		Channel: subscription.Supervisory(),
	})))
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

func buildInput(req JoinRequest) map[string]interface{} {
	channel := map[string]interface{}{
		"kind":        req.Channel.Kind.String(),
		"employee_id": "",
	}
	if req.Channel.Kind == subscription.KindEmployee {
		channel["employee_id"] = req.Channel.EmployeeID.String()
	}
	return map[string]interface{}{
		"user": map[string]interface{}{
			"id":   req.UserID.String(),
			"role": string(req.Role),
		},
		"channel": channel,
	}
}
