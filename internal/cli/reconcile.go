package cli

import (
	"context"
	"fmt"

	"github.com/dconlin/orch/internal/reconcile"
	"github.com/dconlin/orch/internal/tmuxsession"
	"github.com/spf13/cobra"
)

var reconcileTmuxBin string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile the registry against live tmux windows",
	Long: `reconcile enumerates every live tmux window across all worker
sessions and compares it against the active agents in the registry: an
active agent whose window has disappeared is marked completed or
abandoned depending on its primary artifact's phase, and windows with
no matching agent are reported as orphans.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileTmuxBin, "tmux-bin", "tmux", "path to the tmux binary")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	supervisor := tmuxsession.New(reconcileTmuxBin, nil)
	sessions, err := supervisor.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tmux sessions: %w", err)
	}

	var observed []string
	for _, session := range sessions {
		ids, err := supervisor.ListWindowIDs(ctx, session)
		if err != nil {
			return fmt.Errorf("failed to list windows for session %q: %w", session, err)
		}
		observed = append(observed, ids...)
	}

	r := reconcile.New(a.Store, a.Log)
	result, err := r.Reconcile(observed)
	if err != nil {
		return err
	}

	fmt.Printf("completed: %d, abandoned: %d, orphan windows: %d\n",
		len(result.CompletedIDs), len(result.AbandonedIDs), len(result.Orphans))
	for _, o := range result.Orphans {
		fmt.Printf("  orphan: %s:%s (no claiming agent)\n", o.Session, o.WindowID)
	}
	return nil
}
