package reap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dconlin/orch/internal/github"
	"github.com/dconlin/orch/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWindow struct {
	interrupted, exited, killed, fillerCreated bool
	windowCount                                int
}

func (f *fakeWindow) SendInterrupt(ctx context.Context, target string) error { f.interrupted = true; return nil }
func (f *fakeWindow) SendKeysRaw(ctx context.Context, target, keys string) error {
	f.exited = true
	return nil
}
func (f *fakeWindow) KillWindow(ctx context.Context, target string) error { f.killed = true; return nil }
func (f *fakeWindow) NewFillerWindow(ctx context.Context, session string) error {
	f.fillerCreated = true
	return nil
}
func (f *fakeWindow) WindowCount(ctx context.Context, session string) (int, error) {
	return f.windowCount, nil
}

type fakeProcessLister struct {
	rounds [][]int32 // ChildrenOf returns rounds[0] on first call, rounds[1] on second, etc.
	call   int
}

func (f *fakeProcessLister) ChildrenOf(rootPID int32) ([]int32, error) {
	if f.call >= len(f.rounds) {
		return nil, nil
	}
	r := f.rounds[f.call]
	f.call++
	return r, nil
}

func newTestStore(t *testing.T) *registry.Store {
	t.Helper()
	return registry.Open(filepath.Join(t.TempDir(), "agent-registry.json"))
}

func TestReap_NoChildrenSkipsToWorkspaceCleanup(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", Window: "w", Workspace: "ws", Status: registry.StatusActive}))
	agent, _ := store.Find("a1")

	r := New(store, &fakeWindow{}, nil, nil)
	r.Processes = &fakeProcessLister{rounds: [][]int32{{}}}
	r.Grace = 1

	outcome, err := r.Reap(context.Background(), *agent, 1234, nil)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusCompleted, outcome.Status)
	got, _ := store.Find("a1")
	assert.Equal(t, registry.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestReap_InterruptSucceedsAfterChildrenLinger(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", Window: "w", Workspace: "ws", Status: registry.StatusActive}))
	agent, _ := store.Find("a1")

	win := &fakeWindow{}
	r := New(store, win, nil, nil)
	r.Processes = &fakeProcessLister{rounds: [][]int32{{111}, {}}}
	r.Grace = 1

	outcome, err := r.Reap(context.Background(), *agent, 1234, nil)
	require.NoError(t, err)
	assert.True(t, win.interrupted, "expected interrupt to be sent")
	assert.False(t, win.killed, "expected no forced kill once children clear after interrupt")
	assert.Equal(t, registry.StatusCompleted, outcome.Status)
}

func TestReap_ForcedKillWhenChildrenNeverClear(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", Window: "w", Workspace: "ws", Status: registry.StatusActive}))
	agent, _ := store.Find("a1")

	win := &fakeWindow{windowCount: 1}
	r := New(store, win, nil, nil)
	r.Processes = &fakeProcessLister{rounds: [][]int32{{111}, {111}, {111}}}
	r.Grace = 1

	outcome, err := r.Reap(context.Background(), *agent, 1234, nil)
	require.NoError(t, err)
	assert.True(t, win.killed, "expected forced window kill")
	assert.True(t, win.fillerCreated, "expected filler window created since this was the last window")
	assert.Equal(t, registry.StatusFailed, outcome.Status, "expected failed status when cascade could not clear children")
}

type fakeStatusChecker struct {
	state string
	err   error
}

func (f *fakeStatusChecker) CombinedStatusForRef(owner, repo, ref string) (*github.CombinedStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &github.CombinedStatus{State: f.state, TotalCount: 1}, nil
}

func TestReap_GitHubStatusNonSuccessWarnsButCompletes(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", Window: "w", Workspace: "ws", Status: registry.StatusActive}))
	agent, _ := store.Find("a1")

	r := New(store, &fakeWindow{}, nil, nil)
	r.Processes = &fakeProcessLister{rounds: [][]int32{{}}}
	r.Grace = 1
	r.GitHubStatus = &fakeStatusChecker{state: "pending"}

	outcome, err := r.Reap(context.Background(), *agent, 1234, nil)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusCompleted, outcome.Status)
	assert.Len(t, outcome.Warnings, 1)
}

func TestReap_GitHubStatusNonSuccessFailsWhenRequired(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", Window: "w", Workspace: "ws", Status: registry.StatusActive}))
	agent, _ := store.Find("a1")

	r := New(store, &fakeWindow{}, nil, nil)
	r.Processes = &fakeProcessLister{rounds: [][]int32{{}}}
	r.Grace = 1
	r.GitHubStatus = &fakeStatusChecker{state: "failure"}
	r.GitHubRequireGreen = true

	outcome, err := r.Reap(context.Background(), *agent, 1234, nil)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusFailed, outcome.Status)
}

func TestReap_EphemeralWorkspaceCleaned(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	require.NoError(t, store.Register(registry.Agent{ID: "a1", Window: "w", Workspace: "ws", ProjectDir: dir, Status: registry.StatusActive}))
	agent, _ := store.Find("a1")

	r := New(store, &fakeWindow{}, nil, nil)
	r.Processes = &fakeProcessLister{rounds: [][]int32{{}}}
	r.Grace = 1

	outcome, err := r.Reap(context.Background(), *agent, 1234, []Deliverable{{Ephemeral: true}})
	require.NoError(t, err)
	assert.True(t, outcome.WorkspaceCleaned, "expected workspace_cleaned=true for ephemeral skill")
	got, _ := store.Find("a1")
	if assert.NotNil(t, got.Completion) {
		assert.True(t, got.Completion.WorkspaceCleaned)
	}
}
