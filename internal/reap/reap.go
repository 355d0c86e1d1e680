// Package reap implements the reaper (C7): the explicit shutdown
// cascade that safely disposes of a worker's window and ephemeral state
// (spec.md §4.7). Each step is bounded by a timeout and advances to the
// next on failure rather than aborting, so the cascade is best-effort by
// design. The process-tree walk is grounded on
// hugo-lorenzo-mato-quorum-ai's diagnostics package, which uses
// gopsutil/v3/process for the same "enumerate descendants of a root PID"
// shape, here repurposed from host diagnostics to window-child detection.
package reap

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/dconlin/orch/internal/beads"
	"github.com/dconlin/orch/internal/github"
	"github.com/dconlin/orch/internal/orchlog"
	"github.com/dconlin/orch/internal/registry"
)

// Step names the cascade's stages in order (spec.md §4.7).
type Step string

const (
	StepDetecting        Step = "Detecting"
	StepInterrupting     Step = "Interrupting"
	StepExiting          Step = "Exiting"
	StepKilling          Step = "Killing"
	StepCleaningWorkspace Step = "CleaningWorkspace"
	StepClosingTracker   Step = "ClosingTracker"
	StepCommitting       Step = "Committing"
)

// graceInterval bounds how long the cascade waits after an interrupt or
// exit command before re-checking for live children.
var graceInterval = 3 * time.Second

// ExitCommand is the backend-specific string sent into a window to ask
// the worker to shut down cleanly before a forced kill.
const ExitCommand = "/exit"

// Window is the subset of tmuxsession.Supervisor the reaper needs,
// narrowed to an interface so reap can be tested without a real
// multiplexer.
type Window interface {
	SendInterrupt(ctx context.Context, target string) error
	KillWindow(ctx context.Context, target string) error
	SendKeysRaw(ctx context.Context, target, keys string) error
	NewFillerWindow(ctx context.Context, session string) error
	WindowCount(ctx context.Context, session string) (int, error)
}

// ProcessLister abstracts the process-tree walk, narrowed for testing.
type ProcessLister interface {
	ChildrenOf(rootPID int32) ([]int32, error)
}

// StatusChecker abstracts a GitHub combined commit status lookup, narrowed
// from internal/github.StatusClient so the reaper can be tested without a
// real GitHub App installation.
type StatusChecker interface {
	CombinedStatusForRef(owner, repo, ref string) (*github.CombinedStatus, error)
}

// gopsutilLister is the production ProcessLister, grounded on gopsutil's
// process.Processes()/Ppid() walk.
type gopsutilLister struct{}

func (gopsutilLister) ChildrenOf(rootPID int32) ([]int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	var children []int32
	for _, p := range procs {
		ppid, err := p.Ppid()
		if err != nil {
			continue
		}
		if ppid == rootPID {
			children = append(children, p.Pid)
		}
	}
	return children, nil
}

// Outcome records the cascade's final disposition for one agent.
type Outcome struct {
	Status           registry.Status
	WorkspaceCleaned bool
	Warnings         []string
	StepsCompleted   []Step
}

// Reaper drives the shutdown cascade for one agent at a time.
type Reaper struct {
	Store     *registry.Store
	Window    Window
	Processes ProcessLister
	Tracker   *beads.Gateway
	Log       orchlog.Logger
	Grace     time.Duration

	// GitHubStatus, GitHubOwner and GitHubRepo are all optional: when set,
	// closeTrackerIssues checks the agent's workspace branch's combined CI
	// status before closing its tracker issues, recording a warning (not
	// aborting the cascade) on anything but "success".
	GitHubStatus       StatusChecker
	GitHubOwner        string
	GitHubRepo         string
	GitHubRequireGreen bool // when status isn't "success": mark the outcome failed and leave linked issues open, instead of only warning
}

// New returns a Reaper. A nil ProcessLister defaults to the gopsutil
// backend; a nil logger defaults to a no-op.
func New(store *registry.Store, window Window, tracker *beads.Gateway, log orchlog.Logger) *Reaper {
	if log == nil {
		log = orchlog.NewNop()
	}
	return &Reaper{Store: store, Window: window, Processes: gopsutilLister{}, Tracker: tracker, Log: log, Grace: graceInterval}
}

// Reap runs the full cascade for agent, identified by its registry
// record and root window PID. rootPID may be 0 if the process tree is
// unknown, in which case step 1 reports no children and the cascade
// proceeds directly to step 4 (spec.md §4.7 step 1 "If none, skip to
// step 4").
func (r *Reaper) Reap(ctx context.Context, agent registry.Agent, rootPID int32, deliverables []Deliverable) (Outcome, error) {
	target := fmt.Sprintf("%s:%s", agent.Window, agent.Workspace)
	outcome := Outcome{Status: registry.StatusCompleted}

	allClear := r.detectAndInterrupt(ctx, &outcome, target, rootPID)

	if !allClear {
		r.forceKill(ctx, &outcome, agent, target)
	}

	r.cleanWorkspace(&outcome, agent, deliverables)
	r.closeTrackerIssues(ctx, &outcome, agent)

	if !allClear {
		outcome.Status = registry.StatusFailed
	}

	now := time.Now().UTC()
	agent.Status = outcome.Status
	agent.UpdatedAt = now
	completion := &registry.Completion{
		WorkspaceCleaned: outcome.WorkspaceCleaned,
		Notes:            strings.Join(outcome.Warnings, "; "),
	}
	agent.Completion = completion
	switch outcome.Status {
	case registry.StatusCompleted:
		agent.CompletedAt = &now
	default:
		agent.TerminatedAt = &now
	}

	if err := r.Store.ApplyMutations([]registry.Agent{agent}); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// detectAndInterrupt runs steps 1-3: detect children, interrupt, exit
// command. Returns true once no children remain.
func (r *Reaper) detectAndInterrupt(ctx context.Context, outcome *Outcome, target string, rootPID int32) bool {
	outcome.StepsCompleted = append(outcome.StepsCompleted, StepDetecting)
	children := r.children(rootPID)
	if len(children) == 0 {
		return true
	}

	outcome.StepsCompleted = append(outcome.StepsCompleted, StepInterrupting)
	if err := r.Window.SendInterrupt(ctx, target); err != nil {
		r.Log.Warn("reap: interrupt failed", "target", target, "error", err)
	}
	r.sleep(ctx)
	children = r.children(rootPID)
	if len(children) == 0 {
		return true
	}

	outcome.StepsCompleted = append(outcome.StepsCompleted, StepExiting)
	if err := r.Window.SendKeysRaw(ctx, target, ExitCommand); err != nil {
		r.Log.Warn("reap: exit command failed", "target", target, "error", err)
	}
	r.sleep(ctx)
	children = r.children(rootPID)
	return len(children) == 0
}

func (r *Reaper) forceKill(ctx context.Context, outcome *Outcome, agent registry.Agent, target string) {
	outcome.StepsCompleted = append(outcome.StepsCompleted, StepKilling)

	if count, err := r.Window.WindowCount(ctx, agent.Window); err == nil && count <= 1 {
		if err := r.Window.NewFillerWindow(ctx, agent.Window); err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("filler window creation failed: %v", err))
		}
	}
	if err := r.Window.KillWindow(ctx, target); err != nil {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("window kill failed: %v", err))
	}
}

func (r *Reaper) children(rootPID int32) []int32 {
	if rootPID == 0 || r.Processes == nil {
		return nil
	}
	children, err := r.Processes.ChildrenOf(rootPID)
	if err != nil {
		return nil
	}
	return children
}

func (r *Reaper) sleep(ctx context.Context) {
	grace := r.Grace
	if grace == 0 {
		grace = graceInterval
	}
	select {
	case <-ctx.Done():
	case <-time.After(grace):
	}
}

// Deliverable is the subset of a skill's deliverable policy reap needs:
// whether the skill marks the workspace ephemeral (spec.md §4.7 step 5).
type Deliverable struct {
	Ephemeral bool
}

func (r *Reaper) cleanWorkspace(outcome *Outcome, agent registry.Agent, deliverables []Deliverable) {
	ephemeral := false
	for _, d := range deliverables {
		if d.Ephemeral {
			ephemeral = true
		}
	}
	outcome.StepsCompleted = append(outcome.StepsCompleted, StepCleaningWorkspace)
	if !ephemeral {
		return
	}
	wsPath := agent.ProjectDir + "/" + agent.Workspace
	if err := os.RemoveAll(wsPath); err != nil {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("workspace cleanup failed: %v", err))
		return
	}
	outcome.WorkspaceCleaned = true
}

// closeTrackerIssues closes every linked issue unconditionally in the
// success path; failures are recorded as warnings only (spec.md §4.7
// step 6).
func (r *Reaper) closeTrackerIssues(ctx context.Context, outcome *Outcome, agent registry.Agent) {
	outcome.StepsCompleted = append(outcome.StepsCompleted, StepClosingTracker)

	if r.GitHubStatus != nil {
		status, err := r.GitHubStatus.CombinedStatusForRef(r.GitHubOwner, r.GitHubRepo, agent.Workspace)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("github status check failed: %v", err))
		} else if status.State != "success" {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("github status for %s is %q, not success", agent.Workspace, status.State))
			if r.GitHubRequireGreen {
				outcome.Status = registry.StatusFailed
				return
			}
		}
	}

	if r.Tracker == nil {
		return
	}
	var ids []string
	if agent.BeadsID != "" {
		ids = append(ids, agent.BeadsID)
	}
	ids = append(ids, agent.BeadsIDs...)
	for _, id := range ids {
		if err := r.Tracker.Close(ctx, id, "Resolved via orch complete"); err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("failed to close %s: %v", id, err))
		}
	}
}
