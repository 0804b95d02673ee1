package mountplan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplifier-ai/kernel/kernel/mountplan"
)

const minimalYAML = `
session:
  orchestrator: echo
  context: mem
providers:
  - module: prov-null
`

func TestValidate_MinimalPlan_Passes(t *testing.T) {
	raw, err := mountplan.DecodeYAML([]byte(minimalYAML))
	require.NoError(t, err)

	result := mountplan.Validate(raw)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Errors)
}

func TestValidate_MissingContext_FailsWithPathError(t *testing.T) {
	raw, err := mountplan.DecodeYAML([]byte(`
session:
  orchestrator: echo
`))
	require.NoError(t, err)

	result := mountplan.Validate(raw)
	require.False(t, result.Passed)
	found := false
	for _, e := range result.Errors {
		if e.Path == "session.context" {
			found = true
		}
	}
	assert.True(t, found, "expected an error naming path session.context, got %+v", result.Errors)
}

func TestValidate_TopLevelNotMapping_Fails(t *testing.T) {
	raw, err := mountplan.DecodeYAML([]byte(`- a
- b
`))
	require.NoError(t, err)
	result := mountplan.Validate(raw)
	assert.False(t, result.Passed)
}

func TestValidate_UnknownTopLevelKey_WarnsNotErrors(t *testing.T) {
	raw, err := mountplan.DecodeYAML([]byte(`
session:
  orchestrator: echo
  context: mem
future_feature: true
`))
	require.NoError(t, err)
	result := mountplan.Validate(raw)
	assert.True(t, result.Passed)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "future_feature", result.Warnings[0].Path)
}

func TestValidate_ModuleSpecMapping_ConfigMustBeMapping(t *testing.T) {
	raw, err := mountplan.DecodeYAML([]byte(`
session:
  orchestrator: {module: loop-basic, config: "not-a-map"}
  context: mem
`))
	require.NoError(t, err)
	result := mountplan.Validate(raw)
	require.False(t, result.Passed)
	found := false
	for _, e := range result.Errors {
		if e.Path == "session.orchestrator.config" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_InvalidProviderEntry_PathIncludesIndex(t *testing.T) {
	raw, err := mountplan.DecodeYAML([]byte(`
session:
  orchestrator: echo
  context: mem
providers:
  - module: prov-ok
  - module: ""
`))
	require.NoError(t, err)
	result := mountplan.Validate(raw)
	require.False(t, result.Passed)
	found := false
	for _, e := range result.Errors {
		if e.Path == "providers[1].module" {
			found = true
		}
	}
	assert.True(t, found, "expected error at providers[1].module, got %+v", result.Errors)
}

func TestValidate_AgentsSectionIsOpaque(t *testing.T) {
	raw, err := mountplan.DecodeYAML([]byte(`
session:
  orchestrator: echo
  context: mem
agents:
  researcher:
    anything: goes
    nested: {a: 1}
`))
	require.NoError(t, err)
	result := mountplan.Validate(raw)
	assert.True(t, result.Passed)

	plan := mountplan.FromValidated(raw)
	require.NotNil(t, plan.Agents)
	assert.Contains(t, plan.Agents, "researcher")
}

func TestValidate_IsPureFunction_IdenticalInputYieldsIdenticalResult(t *testing.T) {
	raw, err := mountplan.DecodeYAML([]byte(minimalYAML))
	require.NoError(t, err)

	r1 := mountplan.Validate(raw)
	r2 := mountplan.Validate(raw)
	assert.Equal(t, r1, r2)
}

func TestFromValidated_StringShorthandAndMappingBothWork(t *testing.T) {
	raw, err := mountplan.DecodeYAML([]byte(minimalYAML))
	require.NoError(t, err)
	result := mountplan.Validate(raw)
	require.True(t, result.Passed)

	plan := mountplan.FromValidated(raw)
	assert.Equal(t, "echo", plan.Orchestrator.Module)
	assert.Equal(t, "mem", plan.Context.Module)
	require.Len(t, plan.Providers, 1)
	assert.Equal(t, "prov-null", plan.Providers[0].Module)
}

func TestFromValidated_InjectionLimitsDefaultToUnlimited(t *testing.T) {
	raw, err := mountplan.DecodeYAML([]byte(minimalYAML))
	require.NoError(t, err)
	plan := mountplan.FromValidated(raw)
	assert.Equal(t, 0, plan.InjectionBudgetPerTurn)
	assert.Equal(t, 0, plan.InjectionSizeLimit)
}
