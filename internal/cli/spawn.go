package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dconlin/orch/internal/registry"
	"github.com/dconlin/orch/internal/spawnplan"
	"github.com/dconlin/orch/internal/tmuxsession"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	spawnProject        string
	spawnProjectDir     string
	spawnTask           string
	spawnSkill          string
	spawnIssues         []string
	spawnPhases         []string
	spawnMode           string
	spawnValidationMode string
	spawnInteractive    bool
	spawnDatePrefix     bool
	spawnOverrideClosed bool
	spawnAgentCmd       []string
	spawnTmuxBin        string
)

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Plan and launch a new agent session",
	Long: `spawn plans a spawn context from the requested skill and linked
issues, then launches a tmux window running the agent process and
registers the new agent in the local registry.`,
	RunE: runSpawn,
}

func init() {
	spawnCmd.Flags().StringVar(&spawnProject, "project", "", "project name (required)")
	spawnCmd.Flags().StringVar(&spawnProjectDir, "project-dir", "", "absolute path to the project's working tree (required)")
	spawnCmd.Flags().StringVar(&spawnTask, "task", "", "free-text task description, used as the slug source when no issue is linked")
	spawnCmd.Flags().StringVar(&spawnSkill, "skill", "", "skill name from the project's skill manifest")
	spawnCmd.Flags().StringSliceVar(&spawnIssues, "issue", nil, "tracked issue id to link; first one given is primary; repeatable")
	spawnCmd.Flags().StringSliceVar(&spawnPhases, "phase", nil, "skill phases to include in the filtered guidance document")
	spawnCmd.Flags().StringVar(&spawnMode, "mode", "tdd", "feature skill variant: tdd or direct")
	spawnCmd.Flags().StringVar(&spawnValidationMode, "validation-mode", "", "validation mode passed through to the spawn context")
	spawnCmd.Flags().BoolVar(&spawnInteractive, "interactive", false, "mark the session as interactive in the spawn context")
	spawnCmd.Flags().BoolVar(&spawnDatePrefix, "date-prefix", false, "prefix the workspace slug with today's date")
	spawnCmd.Flags().BoolVar(&spawnOverrideClosed, "override-closed", false, "allow spawning against a closed issue")
	spawnCmd.Flags().StringSliceVar(&spawnAgentCmd, "agent-cmd", []string{"claude"}, "worker process argv launched in the new window")
	spawnCmd.Flags().StringVar(&spawnTmuxBin, "tmux-bin", "tmux", "path to the tmux binary")
	_ = spawnCmd.MarkFlagRequired("project")
	_ = spawnCmd.MarkFlagRequired("project-dir")
	rootCmd.AddCommand(spawnCmd)
}

func runSpawn(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	manifest, err := loadManifest(spawnProjectDir)
	if err != nil {
		return fmt.Errorf("failed to load skill manifest: %w", err)
	}

	planner := spawnplan.New(a.Tracker, manifest, nil)
	plan, err := planner.Plan(ctx, spawnplan.Request{
		Task:           spawnTask,
		Project:        spawnProject,
		ProjectDir:     spawnProjectDir,
		SkillName:      spawnSkill,
		IssueIDs:       spawnIssues,
		Phases:         spawnPhases,
		Mode:           spawnMode,
		ValidationMode: spawnValidationMode,
		Interactive:    spawnInteractive,
		DatePrefix:     spawnDatePrefix,
		OverrideClosed: spawnOverrideClosed,
		CallerEnv:      os.Environ(),
	})
	if err != nil {
		return fmt.Errorf("spawn plan rejected: %w", err)
	}
	for _, w := range plan.Warnings {
		a.Log.Warn("spawn context self-check", "severity", w.Severity, "message", w.Message)
	}

	workspaceDir := filepath.Join(spawnProjectDir, plan.Workspace)
	supervisor := tmuxsession.New(spawnTmuxBin, spawnAgentCmd)
	handle, err := supervisor.Launch(ctx, spawnProject, plan.Workspace, workspaceDir, plan.SpawnContext, os.Environ())
	if err != nil {
		return fmt.Errorf("failed to launch worker window: %w", err)
	}

	agent := registry.Agent{
		ID:          uuid.NewString(),
		Task:        spawnTask,
		Project:     spawnProject,
		ProjectDir:  spawnProjectDir,
		Workspace:   plan.Workspace,
		Skill:       spawnSkill,
		Window:      handle.Session,
		WindowID:    handle.WindowID,
		Status:      registry.StatusActive,
		BeadsID:     plan.PrimaryIssue,
		BeadsIDs:    plan.IssueIDs,
		BeadsDBPath: a.Config.Tracker.DBPath,
	}
	if len(plan.Deliverables) > 0 {
		agent.PrimaryArtifact = plan.Deliverables[0].Path
	}
	if err := a.Store.Register(agent); err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}

	fmt.Printf("spawned agent %s in %s:%s (workspace %s)\n", agent.ID, handle.Session, handle.Window, plan.Workspace)
	if len(plan.IssueIDs) > 0 {
		fmt.Printf("linked issues: %s\n", strings.Join(plan.IssueIDs, ", "))
	}
	return nil
}
