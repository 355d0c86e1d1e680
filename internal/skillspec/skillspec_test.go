package skillspec

import (
	"strings"
	"testing"
)

const sampleDoc = `# Bug Fix Skill

Header prose before any marker.

SKILL-TEMPLATE: investigation
Investigate the root cause before touching code.
/SKILL-TEMPLATE

SKILL-TEMPLATE: implementation-tdd
Write a failing test first, then make it pass.
/SKILL-TEMPLATE

SKILL-TEMPLATE: implementation-direct
Implement directly; tests follow.
/SKILL-TEMPLATE

SKILL-TEMPLATE: review
Summarize the diff for review.
/SKILL-TEMPLATE

Footer prose after the last marker.
`

func TestSplitBlocks_HeaderAndFooterPreserved(t *testing.T) {
	blocks, header, footer := splitBlocks(sampleDoc)
	if !strings.Contains(header, "Header prose") {
		t.Errorf("expected header to contain pre-marker prose, got %q", header)
	}
	if !strings.Contains(footer, "Footer prose") {
		t.Errorf("expected footer to contain post-marker prose, got %q", footer)
	}
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}
}

func TestFilterForPhases_KeepsOnlyRequestedPhases(t *testing.T) {
	out := FilterForPhases(sampleDoc, []string{"investigation", "review"}, "")
	if !strings.Contains(out, "Investigate the root cause") {
		t.Errorf("expected investigation block kept")
	}
	if !strings.Contains(out, "Summarize the diff") {
		t.Errorf("expected review block kept")
	}
	if strings.Contains(out, "failing test") || strings.Contains(out, "Implement directly") {
		t.Errorf("expected implementation blocks excluded, got %q", out)
	}
	if !strings.Contains(out, "Header prose") || !strings.Contains(out, "Footer prose") {
		t.Errorf("expected header/footer always kept")
	}
}

func TestFilterForPhases_ImplementationModeSelectsVariant(t *testing.T) {
	tdd := FilterForPhases(sampleDoc, []string{"implementation"}, "tdd")
	if !strings.Contains(tdd, "failing test") {
		t.Errorf("expected tdd mode to keep the tdd variant, got %q", tdd)
	}
	if strings.Contains(tdd, "Implement directly") {
		t.Errorf("expected tdd mode to drop the direct variant, got %q", tdd)
	}

	direct := FilterForPhases(sampleDoc, []string{"implementation"}, "direct")
	if !strings.Contains(direct, "Implement directly") {
		t.Errorf("expected direct mode to keep the direct variant, got %q", direct)
	}
	if strings.Contains(direct, "failing test") {
		t.Errorf("expected direct mode to drop the tdd variant, got %q", direct)
	}
}

func TestFilterForPhases_EmptyPhasesKeepsEverything(t *testing.T) {
	out := FilterForPhases(sampleDoc, nil, "")
	for _, want := range []string{"Investigate", "failing test", "Implement directly", "Summarize the diff"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q kept when no phase filter given", want)
		}
	}
}

func TestPhases_ListsInDocumentOrder(t *testing.T) {
	got := Phases(sampleDoc)
	want := []string{"investigation", "implementation-tdd", "implementation-direct", "review"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phase[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseManifest_SortsByPriority(t *testing.T) {
	data := []byte(`
skills:
  - name: review
    file: review.md
    priority: 2
  - name: bugfix
    file: bugfix.md
    priority: 1
    deliverables:
      - type: workspace
        path_template: "workspaces/{slug}"
        required: true
`)
	m, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(m.Skills) != 2 || m.Skills[0].Name != "bugfix" {
		t.Fatalf("expected bugfix first by priority, got %+v", m.Skills)
	}
	s, ok := m.Find("bugfix")
	if !ok || len(s.Deliverables) != 1 {
		t.Fatalf("expected bugfix skill with 1 deliverable, got %+v ok=%v", s, ok)
	}
	if got := s.Deliverables[0].ResolvePath("agent-1", "fix-slug"); got != "workspaces/fix-slug" {
		t.Errorf("ResolvePath = %q", got)
	}
}
