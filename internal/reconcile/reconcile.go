// Package reconcile implements the reconciler (C4): it brings the
// registry into agreement with the set of windows actually observed
// across every multiplexer session (spec.md §4.4). The shape — enumerate
// observed state, diff against persisted state, batch the resulting
// mutations through a single merge-on-save call — has no single direct
// teacher analog; it is grounded on the original Python orchestrator's
// reconciliation pass (original_source/src/orch/orchestrator.py) adapted
// into the registry's ApplyMutations primitive.
package reconcile

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dconlin/orch/internal/orchlog"
	"github.com/dconlin/orch/internal/registry"
)

// phasePattern mirrors the tracker gateway's latest_phase regex
// (spec.md §4.5), applied here to a workspace artifact's own Phase line
// rather than a tracker comment stream.
var phasePattern = regexp.MustCompile(`(?i)^Phase:\s*(\w+)`)

// Orphan is an advisory record of a live window claimed by no active
// agent (spec.md §4.4 step 4): no destructive action is taken on it.
type Orphan struct {
	Session  string
	WindowID string
}

// Result summarizes one reconciliation cycle.
type Result struct {
	CompletedIDs []string
	AbandonedIDs []string
	Orphans      []Orphan
}

// ArtifactPhase reads the Phase field from a primary_artifact file. A
// missing file or missing Phase line is reported as "" with no error;
// callers treat that as not-complete.
func ArtifactPhase(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
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

// Reconciler diffs the registry against observed window ids.
type Reconciler struct {
	Store  *registry.Store
	Log    orchlog.Logger
	Phase  func(path string) (string, error) // seam for tests; defaults to ArtifactPhase
}

// New returns a Reconciler backed by store, logging through log (a nop
// logger is used if log is nil).
func New(store *registry.Store, log orchlog.Logger) *Reconciler {
	if log == nil {
		log = orchlog.NewNop()
	}
	return &Reconciler{Store: store, Log: log, Phase: ArtifactPhase}
}

// Reconcile runs one cycle. observedWindowIDs must already be the union
// of the orchestrator's own session and every workers-<project> session
// (spec.md §4.4 "Ordering guarantee" — a partial enumeration must abort
// the cycle instead of being passed here at all; that enumeration is the
// caller's responsibility, here the reconcile command in internal/cli).
func (r *Reconciler) Reconcile(observedWindowIDs []string) (Result, error) {
	observed := make(map[string]bool, len(observedWindowIDs))
	for _, id := range observedWindowIDs {
		observed[id] = false // false until claimed below
	}

	active, err := r.Store.ListActive()
	if err != nil {
		return Result{}, err
	}

	now := time.Now().UTC()
	var mutated []registry.Agent
	var result Result

	for _, agent := range active {
		if _, ok := observed[agent.WindowID]; ok {
			observed[agent.WindowID] = true // claimed; window still lives
			continue
		}

		// Window vanished: authoritative completion signal, unless a
		// primary artifact says otherwise.
		if agent.PrimaryArtifact != "" {
			phase, perr := r.phaseFn()(agent.PrimaryArtifact)
			if perr != nil {
				r.Log.Warn("reconcile: failed reading primary artifact phase", "agent", agent.ID, "error", perr)
			}
			if !strings.EqualFold(phase, "Complete") {
				agent.Status = registry.StatusAbandoned
				agent.UpdatedAt = now
				agent.TerminatedAt = &now
				mutated = append(mutated, agent)
				result.AbandonedIDs = append(result.AbandonedIDs, agent.ID)
				continue
			}
		}

		agent.Status = registry.StatusCompleted
		agent.UpdatedAt = now
		agent.CompletedAt = &now
		mutated = append(mutated, agent)
		result.CompletedIDs = append(result.CompletedIDs, agent.ID)
	}

	for id, claimed := range observed {
		if !claimed {
			result.Orphans = append(result.Orphans, Orphan{WindowID: id})
		}
	}

	if len(mutated) == 0 {
		return result, nil
	}
	if err := r.Store.ApplyMutations(mutated); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (r *Reconciler) phaseFn() func(string) (string, error) {
	if r.Phase != nil {
		return r.Phase
	}
	return ArtifactPhase
}
