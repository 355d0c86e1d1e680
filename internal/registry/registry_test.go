package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dconlin/orch/internal/orcherr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return Open(filepath.Join(dir, "agent-registry.json"))
}

func TestRegister_DuplicateActiveRejected(t *testing.T) {
	s := newTestStore(t)
	a := Agent{ID: "add-retry", Project: "svc", Status: StatusActive}
	if err := s.Register(a); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := s.Register(a)
	if err == nil {
		t.Fatal("expected DuplicateAgent error on second register, got nil")
	}
	if kind, ok := orcherr.KindOf(err); !ok || kind != orcherr.KindRegistryConflict {
		t.Fatalf("expected RegistryConflict kind, got %v", err)
	}
}

func TestRegister_StampsTimestamps(t *testing.T) {
	s := newTestStore(t)
	before := time.Now().UTC()
	if err := s.Register(Agent{ID: "a1", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Find("a1")
	if err != nil || got == nil {
		t.Fatalf("find: %v %v", got, err)
	}
	if got.SpawnedAt.Before(before) {
		t.Errorf("spawned_at not stamped to now")
	}
	if !got.SpawnedAt.Equal(got.UpdatedAt) {
		t.Errorf("expected spawned_at == updated_at on register, got %v != %v", got.SpawnedAt, got.UpdatedAt)
	}
}

func TestFind_IDMatchWinsOverIssueMatch(t *testing.T) {
	s := newTestStore(t)
	// agent "svc-a" whose own id happens to equal another agent's linked issue
	if err := s.Register(Agent{ID: "other-agent", BeadsID: "svc-a", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(Agent{ID: "svc-a", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Find("svc-a")
	if err != nil || got == nil {
		t.Fatalf("find: %v %v", got, err)
	}
	if got.ID != "svc-a" {
		t.Errorf("expected exact id match to win, got %q", got.ID)
	}
}

func TestFind_FallsBackToPrimaryIssue(t *testing.T) {
	s := newTestStore(t)
	if err := s.Register(Agent{ID: "add-retry", BeadsID: "svc-abc", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Find("svc-abc")
	if err != nil || got == nil {
		t.Fatalf("find: %v %v", got, err)
	}
	if got.ID != "add-retry" {
		t.Errorf("expected agent found via linked issue, got %q", got.ID)
	}
}

func TestUpdateStatus_BumpsUpdatedAtAndSetsCompletedAt(t *testing.T) {
	s := newTestStore(t)
	if err := s.Register(Agent{ID: "a1", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Find("a1")

	time.Sleep(2 * time.Millisecond)
	if err := s.UpdateStatus("a1", StatusCompleted); err != nil {
		t.Fatal(err)
	}
	after, _ := s.Find("a1")

	if after.Status != StatusCompleted {
		t.Errorf("expected status completed, got %q", after.Status)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Errorf("expected updated_at to advance, before=%v after=%v", before.UpdatedAt, after.UpdatedAt)
	}
	if after.CompletedAt == nil {
		t.Errorf("expected completed_at to be set")
	}
}

func TestUpdateStatus_UnknownAgent(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateStatus("nope", StatusCompleted)
	if err == nil {
		t.Fatal("expected AgentNotFound error")
	}
}

func TestApplyMutations_MaxUpdatedAtWins(t *testing.T) {
	s := newTestStore(t)
	if err := s.Register(Agent{ID: "a1", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}

	// A concurrent writer bumps a1 to completed with a fresh updated_at.
	if err := s.UpdateStatus("a1", StatusCompleted); err != nil {
		t.Fatal(err)
	}
	fresh, _ := s.Find("a1")

	// A stale mutation computed before that transition (e.g. a reconcile
	// cycle that started earlier) must not revert it.
	stale := *fresh
	stale.Status = StatusAbandoned
	stale.UpdatedAt = fresh.UpdatedAt.Add(-time.Hour)

	if err := s.ApplyMutations([]Agent{stale}); err != nil {
		t.Fatal(err)
	}

	after, _ := s.Find("a1")
	if after.Status != StatusCompleted {
		t.Errorf("expected stale mutation to be rejected by max-updated_at resolver, got status=%q", after.Status)
	}
}

func TestApplyMutations_NewerMutationWins(t *testing.T) {
	s := newTestStore(t)
	if err := s.Register(Agent{ID: "a1", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	existing, _ := s.Find("a1")

	newer := *existing
	newer.Status = StatusCompleted
	newer.UpdatedAt = existing.UpdatedAt.Add(time.Hour)

	if err := s.ApplyMutations([]Agent{newer}); err != nil {
		t.Fatal(err)
	}
	after, _ := s.Find("a1")
	if after.Status != StatusCompleted {
		t.Errorf("expected newer mutation to win, got status=%q", after.Status)
	}
}

func TestApplyMutations_AppendsUnknownAgent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	if err := s.ApplyMutations([]Agent{{ID: "new-agent", Status: StatusActive, SpawnedAt: now, UpdatedAt: now}}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Find("new-agent")
	if err != nil || got == nil {
		t.Fatalf("expected new agent to be appended via merge, got %v %v", got, err)
	}
}

func TestListActive_ExcludesCompleted(t *testing.T) {
	s := newTestStore(t)
	if err := s.Register(Agent{ID: "a1", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(Agent{ID: "a2", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus("a1", StatusCompleted); err != nil {
		t.Fatal(err)
	}

	active, err := s.ListActive()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "a2" {
		t.Errorf("expected only a2 active, got %+v", active)
	}
}

func TestListAll_RetainsCompletedRecords(t *testing.T) {
	s := newTestStore(t)
	if err := s.Register(Agent{ID: "a1", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus("a1", StatusFailed); err != nil {
		t.Fatal(err)
	}
	all, err := s.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Status != StatusFailed {
		t.Errorf("expected failed agent retained in registry, got %+v", all)
	}
}

func TestLoad_MissingFileIsEmptyRegistry(t *testing.T) {
	s := newTestStore(t)
	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("expected missing registry file to be treated as empty, got error: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty registry, got %d agents", len(all))
	}
}

func TestRoundTrip_PreservesUnrelatedRecords(t *testing.T) {
	s := newTestStore(t)
	if err := s.Register(Agent{ID: "a1", Task: "task one", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(Agent{ID: "a2", Task: "task two", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateStatus("a1", StatusCompleted); err != nil {
		t.Fatal(err)
	}

	a2, err := s.Find("a2")
	if err != nil || a2 == nil || a2.Task != "task two" {
		t.Fatalf("expected a2 untouched by a1's mutation, got %+v %v", a2, err)
	}
}
