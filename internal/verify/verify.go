// Package verify implements the verifier (C6): a sequence of gates,
// evaluated in order, that decide whether a worker may be marked
// complete (spec.md §4.6). It never mutates state. Grounded on the
// teacher's internal/scope validator, reused directly as the
// ScopePackage gate for monorepo-scoped skills, and on the original
// Python orchestrator's verification.py for gate ordering and messages.
package verify

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/dconlin/orch/internal/beads"
	"github.com/dconlin/orch/internal/gitutil"
	"github.com/dconlin/orch/internal/registry"
	"github.com/dconlin/orch/internal/scope"
)

// Deliverable is the subset of a skill's declared deliverable the
// verifier needs: its resolved path, type, and whether it is required.
type Deliverable struct {
	Type     string
	Path     string
	Required bool
}

// Request bundles everything the verifier needs to evaluate one agent.
type Request struct {
	Agent             registry.Agent
	ProjectDir        string
	Deliverables      []Deliverable
	SkipPhaseGate      bool
	SkipTests         bool
	SkipPushedCheck    bool
	ExcludeFromClean  []string
	ScopePackage      string // monorepo package path an agent's changes must stay within; empty disables the gate
}

// Result is the verifier's structured decision (spec.md §4.6 "Results").
type Result struct {
	Passed   bool
	Errors   []string
	Warnings []string
}

func (r *Result) fail(msg string) {
	r.Passed = false
	r.Errors = append(r.Errors, msg)
}

var nextActionPattern = regexp.MustCompile(`(?m)^\s*-\s*\[( |x|X)\]\s+(.+)$`)
var testResultPattern = regexp.MustCompile(`(?im)^TEST RESULTS?:\s*(PASS|FAIL)`)

// Verifier evaluates the completion gates for an agent.
type Verifier struct {
	Tracker *beads.Gateway
	Git     *gitutil.Repo
}

// New returns a Verifier using tracker for phase/deliverable checks and
// git for the clean-tree and commit-reference checks.
func New(tracker *beads.Gateway, git *gitutil.Repo) *Verifier {
	return &Verifier{Tracker: tracker, Git: git}
}

// Verify runs every gate in spec.md §4.6's fixed order, stopping at the
// first failing gate (gates after a failure are not evaluated, matching
// the "first failure produces an actionable error" contract).
func (v *Verifier) Verify(ctx context.Context, req Request) (Result, error) {
	result := Result{Passed: true}

	if req.Agent.Status != registry.StatusActive {
		result.fail(fmt.Sprintf("AgentNotFound: agent %q is not active", req.Agent.ID))
		return result, nil
	}

	if !req.SkipPhaseGate {
		if primary, ok := req.Agent.PrimaryIssue(); ok && v.Tracker != nil {
			phase, _, err := v.Tracker.LatestPhase(ctx, primary)
			if err != nil {
				return result, err
			}
			if !strings.EqualFold(phase, "Complete") {
				result.fail(fmt.Sprintf("PhaseNotComplete: current_phase=%q", phase))
				return result, nil
			}
		}
	}

	if req.Agent.PrimaryArtifact != "" {
		phase, err := readArtifactPhase(req.Agent.PrimaryArtifact)
		if err != nil && !os.IsNotExist(err) {
			return result, err
		}
		if os.IsNotExist(err) {
			result.fail(fmt.Sprintf("InvestigationIncomplete: artifact %q missing", req.Agent.PrimaryArtifact))
			return result, nil
		}
		if !strings.EqualFold(phase, "Complete") {
			result.fail(fmt.Sprintf("InvestigationIncomplete: artifact phase=%q", phase))
			return result, nil
		}
		result.Warnings = append(result.Warnings, ValidateInvestigationStructure(req.Agent.PrimaryArtifact)...)
	} else if hasDeliverableType(req.Deliverables, "workspace") {
		wsPath := req.ProjectDir + "/" + req.Agent.Workspace
		if _, err := os.Stat(wsPath); err != nil {
			result.fail(fmt.Sprintf("WorkspaceMissing: %q", wsPath))
			return result, nil
		}
	}

	for _, d := range req.Deliverables {
		if !d.Required {
			continue
		}
		if d.Type == "commits" {
			if v.Git == nil {
				continue
			}
			found, err := v.Git.HasCommitReferencing(ctx, req.Agent.Workspace)
			if err != nil {
				return result, err
			}
			if !found {
				result.fail(fmt.Sprintf("MissingDeliverable: no commit references %q", req.Agent.Workspace))
				return result, nil
			}
			continue
		}
		if _, err := os.Stat(d.Path); err != nil {
			result.fail(fmt.Sprintf("MissingDeliverable: %q", d.Path))
			return result, nil
		}
	}

	if pending, ok := pendingActions(req.Agent.PrimaryArtifact); ok && len(pending) > 0 {
		result.fail(fmt.Sprintf("PendingActions: %s", strings.Join(pending, "; ")))
		return result, nil
	}

	if !req.SkipTests {
		if failed, ok := testsFailing(req.Agent.PrimaryArtifact); ok && failed {
			result.fail("TestsFailing: workspace test results block reports FAIL")
			return result, nil
		}
	}

	if req.ScopePackage != "" {
		sv := scope.NewValidator(req.ProjectDir, req.ScopePackage)
		sres, err := sv.ValidateChanges()
		if err != nil {
			return result, err
		}
		if !sres.Valid {
			result.fail(fmt.Sprintf("ScopeViolation: %s", sv.FormatViolationError(sres)))
			return result, nil
		}
	}

	if v.Git != nil {
		dirty, err := v.Git.CleanExcept(ctx, req.ExcludeFromClean)
		if err != nil {
			return result, err
		}
		if len(dirty) > 0 {
			result.fail(fmt.Sprintf("WorkNotCommitted: uncommitted changes: %s", strings.Join(dirty, ", ")))
			return result, nil
		}
		if !req.SkipPushedCheck {
			ahead, err := v.Git.CommitsAhead(ctx)
			if err != nil {
				return result, err
			}
			if ahead > 0 {
				result.fail(fmt.Sprintf("WorkNotCommitted: %d commit(s) not pushed", ahead))
				return result, nil
			}
		}
	}

	return result, nil
}

func hasDeliverableType(ds []Deliverable, t string) bool {
	for _, d := range ds {
		if d.Type == t {
			return true
		}
	}
	return false
}

func readArtifactPhase(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	phase := ""
	for _, line := range strings.Split(string(data), "\n") {
		if m := phasePattern.FindStringSubmatch(line); m != nil {
			phase = m[1]
		}
	}
	return phase, nil
}

var phasePattern = regexp.MustCompile(`(?i)^Phase:\s*(\w+)`)

// pendingActions scans a workspace artifact's Next-Actions checklist for
// unchecked items. A missing artifact or missing checklist means no
// gate applies (ok=false).
func pendingActions(path string) (items []string, ok bool) {
	if path == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	content := string(data)
	idx := strings.Index(strings.ToLower(content), "next-actions")
	if idx < 0 {
		return nil, false
	}
	section := content[idx:]
	matches := nextActionPattern.FindAllStringSubmatch(section, -1)
	if matches == nil {
		return nil, false
	}
	var unchecked []string
	for _, m := range matches {
		if strings.ToLower(m[1]) != "x" {
			unchecked = append(unchecked, m[2])
		}
	}
	return unchecked, true
}

// testsFailing inspects a workspace artifact's TEST RESULTS block. Absence
// of such a block means the gate does not apply (ok=false).
func testsFailing(path string) (failed bool, ok bool) {
	if path == "" {
		return false, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, false
	}
	m := testResultPattern.FindStringSubmatch(string(data))
	if m == nil {
		return false, false
	}
	return strings.EqualFold(m[1], "FAIL"), true
}
