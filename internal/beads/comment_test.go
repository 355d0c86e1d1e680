package beads

import (
	"strings"
	"testing"
	"time"
)

func c(text string, offset time.Duration) Comment {
	return Comment{Text: text, CreatedAt: time.Unix(0, 0).Add(offset)}
}

func TestScan_LatestPhaseWins(t *testing.T) {
	comments := []Comment{
		c("Phase: Planning", 0),
		c("some unrelated note", time.Second),
		c("Phase: Implementing", 2*time.Second),
		c("Phase: Complete", 3*time.Second),
	}
	res := scan(comments)
	if !res.HasPhase || res.LatestPhase != "Complete" {
		t.Fatalf("expected latest phase Complete, got %q (has=%v)", res.LatestPhase, res.HasPhase)
	}
}

func TestScan_CaseInsensitivePrefix(t *testing.T) {
	res := scan([]Comment{c("phase: complete", 0)})
	if !res.HasPhase || res.LatestPhase != "complete" {
		t.Fatalf("expected case-insensitive Phase prefix match, got %+v", res)
	}
}

func TestHasPhaseComplete(t *testing.T) {
	res := scan([]Comment{c("Phase: COMPLETE", 0)})
	if !equalFold(res.LatestPhase, "Complete") {
		t.Fatalf("expected fold match")
	}
}

func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

func TestScan_InvestigationPath(t *testing.T) {
	comments := []Comment{
		c("investigation_path: /tmp/a.md", 0),
		c("investigation_path: /tmp/b.md  ", time.Second),
	}
	res := scan(comments)
	if !res.HasInvestigationPath || res.LatestInvestigationPath != "/tmp/b.md" {
		t.Fatalf("expected latest trimmed investigation path /tmp/b.md, got %q", res.LatestInvestigationPath)
	}
}

func TestScan_AgentMetadata(t *testing.T) {
	comments := []Comment{
		c(`agent_metadata: {"agent_id":"a1","window_id":"@1"}`, 0),
		c(`agent_metadata: not-json`, time.Second),
		c(`agent_metadata: {"agent_id":"a2","window_id":"@2","skill":"feature"}`, 2*time.Second),
	}
	res := scan(comments)
	if res.LatestMetadata == nil || res.LatestMetadata.AgentID != "a2" {
		t.Fatalf("expected latest successfully-parsed metadata to win despite an intervening malformed comment, got %+v", res.LatestMetadata)
	}
}

func TestClassify_UnknownPassesThrough(t *testing.T) {
	msg := classify("just a regular status update")
	if msg.Kind != KindUnknown {
		t.Fatalf("expected KindUnknown, got %v", msg.Kind)
	}
}
