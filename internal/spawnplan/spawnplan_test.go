package spawnplan

import (
	"context"
	"testing"
	"time"

	"github.com/dconlin/orch/internal/skillspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manifestWithBugfix(t *testing.T) *skillspec.Manifest {
	t.Helper()
	m, err := skillspec.ParseManifest([]byte(`
skills:
  - name: bugfix
    file: testdata/bugfix.md
    investigation: true
    deliverables:
      - type: investigation
        path_template: "workspaces/{slug}/INVESTIGATION.md"
        required: true
`))
	require.NoError(t, err)
	return m
}

func TestPlan_NoSkillNoIssues(t *testing.T) {
	p := New(nil, nil, func() time.Time { return fixedNow })
	plan, err := p.Plan(context.Background(), Request{Task: "Add retry to webhook dispatcher", ProjectDir: "/srv/svc"})
	require.NoError(t, err)
	assert.Equal(t, "add-retry-to-webhook-dispatcher", plan.Workspace)
	assert.Contains(t, plan.SpawnContext, "TASK: Add retry to webhook dispatcher")
	assert.Empty(t, plan.Warnings)
}

func TestPlan_WithSkillFiltersPhasesAndSetsInvestigationConfig(t *testing.T) {
	p := New(nil, manifestWithBugfix(t), func() time.Time { return fixedNow })
	plan, err := p.Plan(context.Background(), Request{
		Task:       "Fix flaky retry test",
		ProjectDir: "/srv/svc",
		SkillName:  "bugfix",
		Phases:     []string{"investigation"},
	})
	require.NoError(t, err)
	assert.Contains(t, plan.SkillContent, "Investigate the root cause")
	assert.NotContains(t, plan.SkillContent, "Write a failing test")
	assert.Contains(t, plan.SpawnContext, "INVESTIGATION CONFIGURATION")
	if assert.Len(t, plan.Deliverables, 1) {
		assert.Contains(t, plan.Deliverables[0].Path, plan.Workspace)
	}
}

func TestPlan_UnknownSkillRejected(t *testing.T) {
	p := New(nil, manifestWithBugfix(t), func() time.Time { return fixedNow })
	_, err := p.Plan(context.Background(), Request{Task: "t", ProjectDir: "/p", SkillName: "does-not-exist"})
	assert.Error(t, err)
}

func TestPlan_WorkerSpawningWorkerRejected(t *testing.T) {
	p := New(nil, nil, func() time.Time { return fixedNow })
	_, err := p.Plan(context.Background(), Request{
		Task:       "t",
		ProjectDir: "/p",
		CallerEnv:  []string{"ORCH_CONTEXT=worker"},
	})
	assert.Error(t, err, "expected PlanRejected when caller environment carries a worker marker")
}
