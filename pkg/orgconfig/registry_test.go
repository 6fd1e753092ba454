package orgconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlens/backend/pkg/ratelimit"
)

func TestPlanRegistry_GetReturnsCopyNotReference(t *testing.T) {
	reg := NewPlanRegistry(map[string]*OrgPlan{
		"org1": {OrgID: "org1", Tier: ratelimit.PlanFree, EventQuota: 1000},
	})

	got, err := reg.Get("org1")
	require.NoError(t, err)
	got.EventQuota = 999999

	again, err := reg.Get("org1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), again.EventQuota)
}

func TestPlanRegistry_GetUnknownOrgReturnsNotFound(t *testing.T) {
	reg := NewPlanRegistry(nil)
	_, err := reg.Get("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlanRegistry_PutThenGetPlanAdaptsToRatelimitPlan(t *testing.T) {
	reg := NewPlanRegistry(nil)
	reg.Put(&OrgPlan{OrgID: "org2", Tier: ratelimit.PlanPaid, EventQuota: 5000, OverageCapMultiplier: 1.5})

	p, err := reg.GetPlan("org2")
	require.NoError(t, err)
	assert.Equal(t, ratelimit.PlanPaid, p.Tier)
	assert.Equal(t, int64(5000), p.EventQuota)
	assert.Equal(t, 1.5, p.OverageCapMultiplier)
}

func TestPlanRegistry_GetAllReturnsIndependentCopies(t *testing.T) {
	reg := NewPlanRegistry(map[string]*OrgPlan{
		"a": {OrgID: "a", EventQuota: 1},
		"b": {OrgID: "b", EventQuota: 2},
	})
	all := reg.GetAll()
	require.Len(t, all, 2)
	all["a"].EventQuota = 999

	fresh, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.EventQuota)
}

func TestRuleDefaultsRegistry_ResolveWithNoOverrideReturnsSystemDefaults(t *testing.T) {
	reg := NewRuleDefaultsRegistry(DefaultRuleDefaults(), nil)
	got, err := reg.Resolve("org1")
	require.NoError(t, err)
	assert.Equal(t, DefaultRuleDefaults(), got)
}

func TestRuleDefaultsRegistry_PartialOverrideFillsRemainderFromSystemDefaults(t *testing.T) {
	reg := NewRuleDefaultsRegistry(DefaultRuleDefaults(), nil)
	reg.SetOverride("org1", RuleDefaults{CooldownMinutes: 30})

	got, err := reg.Resolve("org1")
	require.NoError(t, err)
	assert.Equal(t, 30, got.CooldownMinutes)
	assert.Equal(t, DefaultRuleDefaults().EvaluationIntervalSeconds, got.EvaluationIntervalSeconds)
	assert.Equal(t, DefaultRuleDefaults().WindowMinutes, got.WindowMinutes)
}

func TestRuleDefaultsRegistry_FullOverrideReplacesEveryField(t *testing.T) {
	reg := NewRuleDefaultsRegistry(DefaultRuleDefaults(), map[string]RuleDefaults{
		"org2": {EvaluationIntervalSeconds: 10, CooldownMinutes: 5, WindowMinutes: 1},
	})
	got, err := reg.Resolve("org2")
	require.NoError(t, err)
	assert.Equal(t, RuleDefaults{EvaluationIntervalSeconds: 10, CooldownMinutes: 5, WindowMinutes: 1}, got)
}

func TestRuleDefaultsRegistry_OtherOrgsUnaffectedBySetOverride(t *testing.T) {
	reg := NewRuleDefaultsRegistry(DefaultRuleDefaults(), nil)
	reg.SetOverride("org1", RuleDefaults{CooldownMinutes: 99})

	got, err := reg.Resolve("org2")
	require.NoError(t, err)
	assert.Equal(t, DefaultRuleDefaults(), got)
}
