package domain

import "time"

// Policy is a stored Rego module for the subscription join decision. Enabled modules replace
// the built-in policy; they must declare package fleet.subscription.
type Policy struct {
	ID        string
	Name      string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
