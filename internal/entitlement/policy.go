package entitlement

import (
	"strings"

	"netdiag-orchestrator/internal/catalog"
)

// Plan is a user's subscription tier. Anonymous is distinct from Free: it
// marks the absence of an authenticated user, though both tiers are limited
// the same way.
type Plan string

const (
	Anonymous  Plan = "anonymous"
	Free       Plan = "free"
	Pro        Plan = "pro"
	Enterprise Plan = "enterprise"
)

func PlanFromString(raw string) Plan {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pro":
		return Pro
	case "enterprise":
		return Enterprise
	case "free":
		return Free
	default:
		return Anonymous
	}
}

// Paid reports whether the plan grants access to paid-only tools.
func (p Plan) Paid() bool {
	return p == Pro || p == Enterprise
}

const (
	ReasonPaidPlanRequired = "requires a paid plan"
	ReasonDailyLimit       = "daily usage limit reached"
)

// Decision is the outcome of one entitlement evaluation. It is computed per
// attempt and never persisted.
type Decision struct {
	CanUse          bool   `json:"can_use"`
	Reason          string `json:"reason,omitempty"`
	UpgradeRequired bool   `json:"upgrade_required"`
}

// Evaluate decides whether plan may invoke tool given today's usage count.
// Pure and deterministic; callers must re-evaluate before every attempt since
// both the plan and the day can change between attempts.
func Evaluate(tool catalog.ToolDescriptor, plan Plan, usageToday int) Decision {
	if !tool.IsFree && !plan.Paid() {
		return Decision{Reason: ReasonPaidPlanRequired, UpgradeRequired: true}
	}

	// A zero limit means the tool's usage is not tracked for its tier.
	if !plan.Paid() && tool.DailyFreeLimit > 0 && usageToday >= tool.DailyFreeLimit {
		return Decision{Reason: ReasonDailyLimit, UpgradeRequired: true}
	}

	return Decision{CanUse: true}
}
