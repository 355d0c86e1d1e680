package reconcile

import (
	"path/filepath"
	"testing"

	"github.com/dconlin/orch/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *registry.Store {
	t.Helper()
	return registry.Open(filepath.Join(t.TempDir(), "agent-registry.json"))
}

func TestReconcile_WindowStillLiveLeavesAgentUnchanged(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", WindowID: "@1", Status: registry.StatusActive}))
	r := New(store, nil)
	res, err := r.Reconcile([]string{"@1"})
	require.NoError(t, err)
	assert.Empty(t, res.CompletedIDs)
	assert.Empty(t, res.AbandonedIDs)
	got, _ := store.Find("a1")
	assert.Equal(t, registry.StatusActive, got.Status)
}

func TestReconcile_WindowGoneCompletesAgentWithoutArtifact(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", WindowID: "@1", Status: registry.StatusActive}))
	r := New(store, nil)
	res, err := r.Reconcile(nil)
	require.NoError(t, err)
	if require.Len(t, res.CompletedIDs, 1) {
		assert.Equal(t, "a1", res.CompletedIDs[0])
	}
	got, _ := store.Find("a1")
	assert.Equal(t, registry.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestReconcile_WindowGoneWithIncompleteArtifactAbandons(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", WindowID: "@1", Status: registry.StatusActive, PrimaryArtifact: "/tmp/does-not-matter.md"}))
	r := New(store, nil)
	r.Phase = func(string) (string, error) { return "Investigating", nil }

	res, err := r.Reconcile(nil)
	require.NoError(t, err)
	if require.Len(t, res.AbandonedIDs, 1) {
		assert.Equal(t, "a1", res.AbandonedIDs[0])
	}
	got, _ := store.Find("a1")
	assert.Equal(t, registry.StatusAbandoned, got.Status)
	assert.NotNil(t, got.TerminatedAt)
}

func TestReconcile_WindowGoneWithCompletePhaseCompletesAgent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", WindowID: "@1", Status: registry.StatusActive, PrimaryArtifact: "/tmp/does-not-matter.md"}))
	r := New(store, nil)
	r.Phase = func(string) (string, error) { return "Complete", nil }

	res, err := r.Reconcile(nil)
	require.NoError(t, err)
	assert.Len(t, res.CompletedIDs, 1)
}

func TestReconcile_OrphanWindowReportedNotActedOn(t *testing.T) {
	store := newTestStore(t)
	r := New(store, nil)
	res, err := r.Reconcile([]string{"@99"})
	require.NoError(t, err)
	if require.Len(t, res.Orphans, 1) {
		assert.Equal(t, "@99", res.Orphans[0].WindowID)
	}
}

func TestReconcile_IdempotentOnRepeatedCycles(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", WindowID: "@1", Status: registry.StatusActive}))
	r := New(store, nil)
	_, err := r.Reconcile(nil)
	require.NoError(t, err)
	first, _ := store.Find("a1")

	_, err = r.Reconcile(nil)
	require.NoError(t, err)
	second, _ := store.Find("a1")

	assert.Equal(t, first.Status, second.Status)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt), "expected second cycle to be a no-op")
}

func TestArtifactPhase_MissingFileReturnsEmpty(t *testing.T) {
	phase, err := ArtifactPhase(filepath.Join(t.TempDir(), "nope.md"))
	require.NoError(t, err)
	assert.Empty(t, phase)
}
