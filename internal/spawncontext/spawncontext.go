// Package spawncontext composes the SpawnContext text: the one-shot,
// write-once brief the planner materializes into a workspace to convey
// task, scope, authority, deliverables, and skill guidance to a worker
// (spec.md §4.1 "SpawnContext composition"). The section-by-section
// templating idiom is grounded on the teacher's internal/agentmd
// generator, which composes a generated document out of named sections
// in a fixed order; the content itself is new, following the original
// Python orchestrator's instructions.py prose conventions
// (original_source/src/orch/instructions.py).
package spawncontext

import (
	"fmt"
	"strings"

	"github.com/dconlin/orch/internal/skillspec"
)

// SessionScope classifies the expected duration of a spawned session.
type SessionScope string

const (
	ScopeSmall  SessionScope = "Small"
	ScopeMedium SessionScope = "Medium"
	ScopeLarge  SessionScope = "Large"
)

// EstimatedDuration returns the human-readable duration band for a scope.
func (s SessionScope) EstimatedDuration() string {
	switch s {
	case ScopeSmall:
		return "15-30 minutes"
	case ScopeMedium:
		return "30-90 minutes"
	case ScopeLarge:
		return "90+ minutes"
	default:
		return "unknown"
	}
}

// FeatureConfig describes feature-style skill selection (spec.md §4.1).
type FeatureConfig struct {
	Phases         []string
	Mode           string // "tdd" or "direct"
	ValidationMode string
}

// InvestigationConfig describes investigation-style skill selection.
type InvestigationConfig struct {
	Type                string
	ExpectArtifact      bool
}

// Deliverable is the resolved (type, path, required) entry the worker
// must satisfy, already expanded from a skillspec.Deliverable template.
type Deliverable struct {
	Type     skillspec.DeliverableType
	Path     string
	Required bool
}

// Request is everything the composer needs to build a SpawnContext.
type Request struct {
	Task          string
	ProjectDir    string
	Scope         SessionScope
	InScope       []string
	OutOfScope    []string
	Authority     []string
	Escalate      []string
	Deliverables  []Deliverable
	ContextPaths  []string
	IssueIDs      []string // first is primary
	SkillName     string
	SkillContent  string // already phase-filtered
	Feature       *FeatureConfig
	Investigation *InvestigationConfig
}

// Compose renders the full SpawnContext text in the fixed section order
// required by spec.md §4.1 and verified by §8's section-presence
// property.
func Compose(r Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "TASK: %s\n", r.Task)
	fmt.Fprintf(&b, "PROJECT_DIR: %s\n\n", r.ProjectDir)

	scope := r.Scope
	if scope == "" {
		scope = ScopeMedium
	}
	fmt.Fprintf(&b, "SESSION SCOPE: %s\nEstimated duration: %s\n\n", scope, scope.EstimatedDuration())

	b.WriteString("SCOPE:\n")
	b.WriteString("IN:\n")
	writeBulletsOrNone(&b, r.InScope)
	b.WriteString("OUT:\n")
	writeBulletsOrNone(&b, r.OutOfScope)
	b.WriteString("\n")

	b.WriteString("AUTHORITY:\n")
	b.WriteString("You may decide:\n")
	writeBulletsOrNone(&b, r.Authority)
	b.WriteString("You must escalate:\n")
	writeBulletsOrNone(&b, r.Escalate)
	b.WriteString("\n")

	b.WriteString("DELIVERABLES:\n")
	if len(r.Deliverables) == 0 {
		b.WriteString("  (none declared)\n")
	}
	for _, d := range r.Deliverables {
		req := "optional"
		if d.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "  - [%s] %s (%s)\n", d.Type, d.Path, req)
	}
	b.WriteString("\n")

	b.WriteString("VERIFICATION REQUIRED:\n")
	b.WriteString("  - Working tree changes stay within declared scope\n")
	b.WriteString("  - All required deliverables are present\n")
	if len(r.IssueIDs) > 0 {
		b.WriteString("  - Commits reference the linked issue id where applicable\n")
	}
	b.WriteString("\n")

	b.WriteString("CONTEXT AVAILABLE:\n")
	writeBulletsOrNone(&b, r.ContextPaths)
	b.WriteString("\n")

	if len(r.IssueIDs) > 0 {
		b.WriteString("BEADS PROGRESS TRACKING:\n")
		for i, id := range r.IssueIDs {
			tag := ""
			if i == 0 {
				tag = " (primary)"
			}
			fmt.Fprintf(&b, "  - %s%s\n", id, tag)
		}
		b.WriteString("Append `Phase: <name>` comments to the primary issue as you progress.\n")
		b.WriteString("Do not close these issues yourself; the orchestrator closes them on verified completion.\n\n")
	}

	if r.SkillName != "" {
		fmt.Fprintf(&b, "SKILL GUIDANCE (%s):\n%s\n\n", r.SkillName, strings.TrimRight(r.SkillContent, "\n"))

		if r.Feature != nil {
			b.WriteString("FEATURE-IMPL CONFIGURATION:\n")
			fmt.Fprintf(&b, "  phases: %s\n", strings.Join(r.Feature.Phases, ", "))
			fmt.Fprintf(&b, "  mode: %s\n", r.Feature.Mode)
			fmt.Fprintf(&b, "  validation_mode: %s\n\n", r.Feature.ValidationMode)
		}
		if r.Investigation != nil {
			b.WriteString("INVESTIGATION CONFIGURATION:\n")
			fmt.Fprintf(&b, "  type: %s\n", r.Investigation.Type)
			fmt.Fprintf(&b, "  expect_artifact: %v\n\n", r.Investigation.ExpectArtifact)
		}
	}

	b.WriteString("SESSION COMPLETE PROTOCOL:\n")
	b.WriteString("  When finished, post `Phase: Complete` to the primary issue (if any linked) and leave the\n")
	b.WriteString("  window open; the orchestrator will detect completion and run verification.\n")

	return b.String()
}

func writeBulletsOrNone(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString("  (none)\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

// RequiredSections lists the section headers every composed SpawnContext
// must contain, used by the planner's quality self-check and by tests
// asserting spec.md §8's section-presence property.
var RequiredSections = []string{
	"TASK:",
	"PROJECT_DIR:",
	"SCOPE:",
	"AUTHORITY:",
	"DELIVERABLES:",
	"VERIFICATION REQUIRED:",
	"SESSION COMPLETE PROTOCOL:",
}

// HasSection reports whether text contains header, anchored to the start
// of a line.
func HasSection(text, header string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, header) {
			return true
		}
	}
	return false
}
