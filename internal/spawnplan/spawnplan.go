// Package spawnplan implements the spawn planner (C1): it turns a spawn
// request into an immutable, side-effect-free plan (spec.md §4.1). It is
// grounded on the original Python orchestrator's planning pass
// (original_source/src/orch/instructions.py, orchestrator.py) for the
// contracts, adapted into the teacher's request/response struct style
// seen in internal/controller.
package spawnplan

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dconlin/orch/internal/beads"
	"github.com/dconlin/orch/internal/orcherr"
	"github.com/dconlin/orch/internal/skillspec"
	"github.com/dconlin/orch/internal/spawncontext"
)

// WorkerContextEnvVar is the environment variable a worker process
// carries; its presence in the planner's own environment means the
// caller is itself a worker attempting to spawn a worker, which is
// always rejected (spec.md §4.2, §8 boundary behavior).
const WorkerContextEnvVar = "ORCH_CONTEXT"

// Severity classifies a quality self-check warning.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Warning is one advisory finding from the quality self-check.
type Warning struct {
	Severity Severity
	Message  string
}

// Request is the input to Plan (spec.md §4.1 Inputs).
type Request struct {
	Task            string
	Project         string
	ProjectDir      string
	SkillName       string
	IssueIDs        []string
	Phases          []string
	Mode            string // "tdd" | "direct"
	ValidationMode  string
	Interactive     bool
	DatePrefix      bool
	OverrideClosed  bool
	CallerEnv       []string // caller's own environment, for worker-spawning-worker detection
}

// Plan is the immutable output of the planner (spec.md §4.1 Outputs).
type Plan struct {
	Workspace     string
	ProjectDir    string
	Deliverables  []spawncontext.Deliverable
	SkillContent  string
	SpawnContext  string
	PrimaryIssue  string
	IssueIDs      []string
	Warnings      []Warning
}

// Planner composes spawn plans from tracker and skill manifest state.
type Planner struct {
	Tracker  *beads.Gateway
	Manifest *skillspec.Manifest
	Now      func() time.Time
}

// New constructs a Planner. now defaults to time.Now when nil.
func New(tracker *beads.Gateway, manifest *skillspec.Manifest, now func() time.Time) *Planner {
	if now == nil {
		now = time.Now
	}
	return &Planner{Tracker: tracker, Manifest: manifest, Now: now}
}

// Plan transforms req into an immutable spawn plan. It never mutates the
// registry, tracker, or filesystem: all planner failures are pre-launch
// (spec.md §4.1 "Failure semantics").
func (p *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	if isWorkerEnv(req.CallerEnv) {
		return nil, orcherr.New(orcherr.KindPlanRejected, "worker_spawning_worker",
			"refusing to spawn: caller environment already carries a worker context marker")
	}

	primary, issues, err := p.resolveIssues(ctx, req)
	if err != nil {
		return nil, err
	}

	titleSource := req.Task
	if titleSource == "" && primary != "" {
		if issue, err := p.Tracker.GetIssue(ctx, primary); err == nil && issue != nil {
			titleSource = issue.Title
		}
	}

	now := p.Now()
	slug := Slugify(titleSource, now)
	workspace := WithDatePrefix(slug, now, req.DatePrefix)

	var skillContent string
	var deliverables []spawncontext.Deliverable
	var skill skillspec.Skill
	var hasSkill bool
	if req.SkillName != "" && p.Manifest != nil {
		skill, hasSkill = p.Manifest.Find(req.SkillName)
		if !hasSkill {
			return nil, orcherr.New(orcherr.KindPlanRejected, "unknown_skill",
				fmt.Sprintf("skill %q not found in manifest", req.SkillName)).WithContext("skill", req.SkillName)
		}
		raw, rerr := readSkillFile(skill.File)
		if rerr != nil {
			return nil, orcherr.Wrap(orcherr.KindPlanRejected, "skill_file_unreadable", rerr).WithContext("skill", req.SkillName)
		}
		mode := req.Mode
		if mode == "" {
			mode = "tdd"
		}
		skillContent = skillspec.FilterForPhases(raw, req.Phases, mode)
		for _, d := range skill.Deliverables {
			deliverables = append(deliverables, spawncontext.Deliverable{
				Type:     d.Type,
				Path:     d.ResolvePath(workspace, workspace),
				Required: d.Required,
			})
		}
	}

	var feature *spawncontext.FeatureConfig
	var investigation *spawncontext.InvestigationConfig
	if hasSkill && skill.Feature {
		mode := req.Mode
		if mode == "" {
			mode = "tdd"
		}
		feature = &spawncontext.FeatureConfig{Phases: req.Phases, Mode: mode, ValidationMode: req.ValidationMode}
	}
	if hasSkill && skill.Investigation {
		investigation = &spawncontext.InvestigationConfig{Type: req.SkillName, ExpectArtifact: hasDeliverableType(deliverables, skillspec.DeliverableInvestigation)}
	}

	scope := spawncontext.ScopeMedium

	ctxText := spawncontext.Compose(spawncontext.Request{
		Task:          req.Task,
		ProjectDir:    req.ProjectDir,
		Scope:         scope,
		Deliverables:  deliverables,
		IssueIDs:      issues,
		SkillName:     req.SkillName,
		SkillContent:  skillContent,
		Feature:       feature,
		Investigation: investigation,
	})

	plan := &Plan{
		Workspace:    workspace,
		ProjectDir:   req.ProjectDir,
		Deliverables: deliverables,
		SkillContent: skillContent,
		SpawnContext: ctxText,
		PrimaryIssue: primary,
		IssueIDs:     issues,
	}
	plan.Warnings = selfCheck(ctxText)
	return plan, nil
}

// resolveIssues queries the tracker gateway for each requested issue,
// rejecting the plan if any is closed (unless overridden) or missing
// (spec.md §4.1 "Issue resolution"). The first ID in command order is
// primary; the rest retain declaration order.
func (p *Planner) resolveIssues(ctx context.Context, req Request) (primary string, all []string, err error) {
	if len(req.IssueIDs) == 0 || p.Tracker == nil {
		return "", nil, nil
	}
	for i, id := range req.IssueIDs {
		issue, ierr := p.Tracker.GetIssue(ctx, id)
		if ierr != nil {
			if kind, ok := orcherr.KindOf(ierr); ok && kind == orcherr.KindTrackerError {
				return "", nil, orcherr.Wrap(orcherr.KindPlanRejected, "issue_not_found", ierr).WithContext("issue", id)
			}
			return "", nil, ierr
		}
		if issue.Status == beads.StatusClosed && !req.OverrideClosed {
			return "", nil, orcherr.New(orcherr.KindPlanRejected, "closed_issue",
				fmt.Sprintf("issue %q is closed", id)).WithContext("issue", id)
		}
		if i == 0 {
			primary = id
		}
		all = append(all, id)
	}
	return primary, all, nil
}

func isWorkerEnv(env []string) bool {
	prefix := WorkerContextEnvVar + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) && strings.TrimPrefix(kv, prefix) != "" {
			return true
		}
	}
	return false
}

func hasDeliverableType(ds []spawncontext.Deliverable, t skillspec.DeliverableType) bool {
	for _, d := range ds {
		if d.Type == t {
			return true
		}
	}
	return false
}

func readSkillFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// selfCheck scores the composed SpawnContext against the fixed section
// checklist and returns advisory warnings; a low score never blocks
// spawning (spec.md §4.1 "Quality self-check").
func selfCheck(text string) []Warning {
	var warnings []Warning
	for _, section := range spawncontext.RequiredSections {
		if !spawncontext.HasSection(text, section) {
			warnings = append(warnings, Warning{
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("missing required section %q", section),
			})
		}
	}
	if len(text) < 40 {
		warnings = append(warnings, Warning{Severity: SeverityWarning, Message: "spawn context unusually short"})
	}
	return warnings
}
