// Package quota maps billing plans to the engine's usage limits. The engine
// only consumes the plan fact; identity and payments live elsewhere.
package quota

import (
	"github.com/nmery/needscan/internal/config"
	"github.com/nmery/needscan/internal/types"
)

// Limits are the per-plan caps. Zero means unlimited.
type Limits struct {
	ScansPerDay    int `json:"scans_per_day"`
	InsightsPerRun int `json:"insights_per_run"`
}

// Unlimited reports whether the plan has no daily scan cap.
func (l Limits) Unlimited() bool {
	return l.ScansPerDay == 0
}

// ForPlan returns the limits for a billing plan. Unknown plans are treated
// as free, the conservative choice.
func ForPlan(plan types.Plan, cfg config.QuotaConfig) Limits {
	if plan == types.PlanPremium {
		return Limits{}
	}
	return Limits{
		ScansPerDay:    cfg.FreeScansPerDay,
		InsightsPerRun: cfg.FreeInsightsPerRun,
	}
}

// Usage is a snapshot of an owner's consumption against their limits.
type Usage struct {
	Plan           types.Plan `json:"plan"`
	ScansToday     int        `json:"scans_today"`
	ScansPerDay    int        `json:"scans_per_day"`
	InsightsPerRun int        `json:"insights_per_run"`
	Remaining      int        `json:"remaining"`
}

// NewUsage computes the remaining allowance for an owner.
func NewUsage(plan types.Plan, used int, limits Limits) Usage {
	u := Usage{
		Plan:           plan,
		ScansToday:     used,
		ScansPerDay:    limits.ScansPerDay,
		InsightsPerRun: limits.InsightsPerRun,
	}
	if limits.Unlimited() {
		u.Remaining = -1
	} else if rem := limits.ScansPerDay - used; rem > 0 {
		u.Remaining = rem
	}
	return u
}
