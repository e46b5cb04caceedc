// Package retention resolves recording retention policies and prunes
// recordings whose window has passed.
package retention

import "context"

// Policy is a resolved retention policy.
type Policy struct {
	Ref  string // stable policy reference stored on the recording
	Days int
}

// Resolver looks up the retention policy applicable to an org's
// recordings for a given classification ("billing" or "operational").
type Resolver interface {
	Lookup(ctx context.Context, orgID, classification string) (Policy, error)
}

// StaticResolver resolves policies from configured per-classification
// defaults, identical for every org.
type StaticResolver struct {
	BillingDays     int
	OperationalDays int
}

// Lookup implements Resolver.
func (r StaticResolver) Lookup(_ context.Context, _ string, classification string) (Policy, error) {
	if classification == "billing" {
		return Policy{Ref: "default-billing", Days: r.BillingDays}, nil
	}
	return Policy{Ref: "default-operational", Days: r.OperationalDays}, nil
}
