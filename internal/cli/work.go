package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dconlin/orch/internal/daemon"
	"github.com/dconlin/orch/internal/focus"
	"github.com/dconlin/orch/internal/registry"
	"github.com/dconlin/orch/internal/spawnplan"
	"github.com/dconlin/orch/internal/tmuxsession"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	workProjectDirs []string
	workDryRun      bool
	workOnce        bool
	workAgentCmd    []string
	workTmuxBin     string
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run the autonomous polling daemon",
	Long: `work polls every configured project's tracker for ready issues,
prioritizes them against ~/.orch/focus.json when enabled, and spawns
agents up to the configured concurrency cap, repeating on the
configured poll interval until interrupted.`,
	RunE: runWork,
}

func init() {
	workCmd.Flags().StringSliceVar(&workProjectDirs, "project-dir", nil, "project working tree to poll; repeatable (required)")
	workCmd.Flags().BoolVar(&workDryRun, "dry-run", false, "report what would be spawned without spawning")
	workCmd.Flags().BoolVar(&workOnce, "once", false, "run a single cycle and exit instead of looping")
	workCmd.Flags().StringSliceVar(&workAgentCmd, "agent-cmd", []string{"claude"}, "worker process argv launched in each new window")
	workCmd.Flags().StringVar(&workTmuxBin, "tmux-bin", "tmux", "path to the tmux binary")
	_ = workCmd.MarkFlagRequired("project-dir")
	rootCmd.AddCommand(workCmd)
}

func runWork(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dirs := make(map[string]string, len(workProjectDirs))
	for _, dir := range workProjectDirs {
		dirs[filepath.Base(dir)] = dir
	}

	cfg := daemon.DefaultConfig()
	cfg.PollInterval = a.Config.Daemon.PollInterval
	cfg.MaxConcurrentAgents = a.Config.Daemon.MaxConcurrentAgents
	cfg.RequiredLabel = a.Config.Daemon.RequiredLabel
	cfg.DryRun = workDryRun
	cfg.UseFocus = a.Config.Focus.Enabled
	if cfg.UseFocus {
		cfg.Focus = focus.Load(a.Config.Focus.Path)
	}

	projects := func(context.Context) ([]string, error) {
		names := make([]string, 0, len(dirs))
		for name := range dirs {
			names = append(names, name)
		}
		return names, nil
	}

	issues := func(ctx context.Context, project, requiredLabel string) ([]daemon.ReadyIssue, error) {
		dir, ok := dirs[project]
		if !ok {
			return nil, nil
		}
		tracker := a.Tracker.WithDB(filepath.Join(dir, ".beads"))
		found, err := tracker.ListReady(ctx, requiredLabel)
		if err != nil {
			return nil, err
		}
		candidates := make([]daemon.ReadyIssue, 0, len(found))
		for _, iss := range found {
			candidates = append(candidates, daemon.ReadyIssue{
				ID:      iss.ID,
				Title:   iss.Title,
				Labels:  iss.Labels,
				Project: project,
			})
		}
		return candidates, nil
	}

	spawn := func(ctx context.Context, issue daemon.ReadyIssue) error {
		dir := dirs[issue.Project]
		manifest, err := loadManifest(dir)
		if err != nil {
			return err
		}
		tracker := a.Tracker.WithDB(filepath.Join(dir, ".beads"))
		planner := spawnplan.New(tracker, manifest, nil)
		plan, err := planner.Plan(ctx, spawnplan.Request{
			Project:    issue.Project,
			ProjectDir: dir,
			IssueIDs:   []string{issue.ID},
			CallerEnv:  os.Environ(),
		})
		if err != nil {
			return err
		}

		workspaceDir := filepath.Join(dir, plan.Workspace)
		supervisor := tmuxsession.New(workTmuxBin, workAgentCmd)
		handle, err := supervisor.Launch(ctx, issue.Project, plan.Workspace, workspaceDir, plan.SpawnContext, os.Environ())
		if err != nil {
			return err
		}

		return a.Store.Register(registry.Agent{
			ID:          uuid.NewString(),
			Project:     issue.Project,
			ProjectDir:  dir,
			Workspace:   plan.Workspace,
			Window:      handle.Session,
			WindowID:    handle.WindowID,
			Status:      registry.StatusActive,
			BeadsID:     plan.PrimaryIssue,
			BeadsIDs:    plan.IssueIDs,
			BeadsDBPath: filepath.Join(dir, ".beads"),
		})
	}

	d := daemon.New(a.Store, projects, issues, spawn, a.Log, cfg)

	if workOnce {
		stats, err := d.RunCycle(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("cycle complete: %+v\n", stats)
		return nil
	}
	return d.Run(ctx)
}
