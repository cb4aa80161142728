package entitlement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"netdiag-orchestrator/internal/catalog"
)

func paidTool() catalog.ToolDescriptor {
	return catalog.ToolDescriptor{ID: "header-analyzer", IsFree: false}
}

func limitedTool(limit int) catalog.ToolDescriptor {
	return catalog.ToolDescriptor{ID: "email-validate", IsFree: true, DailyFreeLimit: limit}
}

func TestEvaluate_PaidToolDeniedForFreeAndAnonymous(t *testing.T) {
	for _, plan := range []Plan{Free, Anonymous} {
		for _, used := range []int{0, 5, 1000} {
			d := Evaluate(paidTool(), plan, used)
			require.False(t, d.CanUse, "plan=%s used=%d", plan, used)
			require.True(t, d.UpgradeRequired)
			require.Equal(t, ReasonPaidPlanRequired, d.Reason)
		}
	}
}

func TestEvaluate_PaidToolAllowedForPaidPlans(t *testing.T) {
	for _, plan := range []Plan{Pro, Enterprise} {
		d := Evaluate(paidTool(), plan, 9999)
		require.True(t, d.CanUse, "plan=%s", plan)
	}
}

func TestEvaluate_FreeToolUnderLimit(t *testing.T) {
	d := Evaluate(limitedTool(2), Free, 1)
	require.True(t, d.CanUse)
	require.Empty(t, d.Reason)
}

func TestEvaluate_FreeToolAtLimit(t *testing.T) {
	d := Evaluate(limitedTool(2), Free, 2)
	require.False(t, d.CanUse)
	require.True(t, d.UpgradeRequired)
	require.Equal(t, ReasonDailyLimit, d.Reason)
}

func TestEvaluate_ZeroLimitMeansUntracked(t *testing.T) {
	d := Evaluate(limitedTool(0), Anonymous, 100000)
	require.True(t, d.CanUse)
}

func TestEvaluate_PaidPlansIgnoreLimit(t *testing.T) {
	d := Evaluate(limitedTool(2), Pro, 50)
	require.True(t, d.CanUse)
}

func TestEvaluate_LimitScenario(t *testing.T) {
	// Free user, limit 2: attempts at usage 0 and 1 pass, the third is denied.
	tool := limitedTool(2)
	require.True(t, Evaluate(tool, Free, 0).CanUse)
	require.True(t, Evaluate(tool, Free, 1).CanUse)

	d := Evaluate(tool, Free, 2)
	require.False(t, d.CanUse)
	require.Contains(t, d.Reason, "limit")
	require.True(t, d.UpgradeRequired)
}

func TestPlanFromString(t *testing.T) {
	require.Equal(t, Pro, PlanFromString(" PRO "))
	require.Equal(t, Enterprise, PlanFromString("enterprise"))
	require.Equal(t, Free, PlanFromString("free"))
	require.Equal(t, Anonymous, PlanFromString(""))
	require.Equal(t, Anonymous, PlanFromString("garbage"))
}
