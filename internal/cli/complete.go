package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dconlin/orch/internal/config"
	"github.com/dconlin/orch/internal/github"
	"github.com/dconlin/orch/internal/reap"
	"github.com/dconlin/orch/internal/registry"
	"github.com/dconlin/orch/internal/skillspec"
	"github.com/dconlin/orch/internal/tmuxsession"
	"github.com/dconlin/orch/internal/verify"
	"github.com/spf13/cobra"
)

var (
	completeSkipTests bool
	completeSkipPush  bool
	completeForce     bool
	completeTmuxBin   string
	completeRootPID   int32
)

var completeCmd = &cobra.Command{
	Use:   "complete <agent-or-issue-id>",
	Short: "Verify and reap an agent's session",
	Long: `complete runs the verification gates against a still-active agent
and, if they all pass (or --force is given), runs the shutdown cascade:
interrupt, exit, kill if necessary, workspace cleanup, and tracker issue
closure, finally recording the outcome in the registry.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().BoolVar(&completeSkipTests, "skip-tests", false, "skip the TestsFailing gate")
	completeCmd.Flags().BoolVar(&completeSkipPush, "skip-push-check", false, "skip the unpushed-commits gate")
	completeCmd.Flags().BoolVar(&completeForce, "force", false, "reap even if a verification gate fails")
	completeCmd.Flags().StringVar(&completeTmuxBin, "tmux-bin", "tmux", "path to the tmux binary")
	completeCmd.Flags().Int32Var(&completeRootPID, "root-pid", 0, "root process id of the worker, if known, for process-tree detection")
	rootCmd.AddCommand(completeCmd)
}

func runComplete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	agent, err := a.Store.Find(args[0])
	if err != nil {
		return err
	}
	if agent == nil {
		return fmt.Errorf("no agent found matching %q", args[0])
	}

	manifest, err := loadManifest(agent.ProjectDir)
	if err != nil {
		return fmt.Errorf("failed to load skill manifest: %w", err)
	}
	var skill skillspec.Skill
	var hasSkill bool
	if agent.Skill != "" {
		skill, hasSkill = manifest.Find(agent.Skill)
	}

	var verifyDeliverables []verify.Deliverable
	var reapDeliverables []reap.Deliverable
	if hasSkill {
		for _, d := range skill.Deliverables {
			verifyDeliverables = append(verifyDeliverables, verify.Deliverable{
				Type:     string(d.Type),
				Path:     d.ResolvePath(agent.ID, agent.Workspace),
				Required: d.Required,
			})
		}
		reapDeliverables = append(reapDeliverables, reap.Deliverable{Ephemeral: skill.Ephemeral})
	}

	v := verify.New(a.Tracker, a.git(agent.ProjectDir))
	result, err := v.Verify(ctx, verify.Request{
		Agent:            *agent,
		ProjectDir:       agent.ProjectDir,
		Deliverables:     verifyDeliverables,
		SkipTests:        completeSkipTests,
		SkipPushedCheck:  completeSkipPush || a.Config.Verify.SkipPushCheck,
		ExcludeFromClean: a.Config.Verify.ExclusionList,
		ScopePackage:     skill.PackagePath,
	})
	if err != nil {
		return fmt.Errorf("verification failed to run: %w", err)
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if !result.Passed {
		for _, e := range result.Errors {
			fmt.Printf("gate failed: %s\n", e)
		}
		if !completeForce {
			return fmt.Errorf("agent %q did not pass verification; rerun with --force to reap anyway", agent.ID)
		}
		fmt.Println("--force given: proceeding to reap despite failed gate(s)")
	}

	supervisor := tmuxsession.New(completeTmuxBin, nil)
	reaper := reap.New(a.Store, supervisor, a.Tracker, a.Log)
	reaper.Grace = a.Config.Reap.GraceInterval
	if err := configureGitHubStatusCheck(reaper, a.Config.GitHub); err != nil {
		fmt.Printf("warning: github status check disabled: %v\n", err)
	}
	outcome, err := reaper.Reap(ctx, *agent, completeRootPID, reapDeliverables)
	if err != nil {
		return fmt.Errorf("reap failed: %w", err)
	}

	fmt.Printf("agent %s reaped: status=%s workspace_cleaned=%v steps=%v\n",
		agent.ID, outcome.Status, outcome.WorkspaceCleaned, outcome.StepsCompleted)
	for _, w := range outcome.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	if outcome.Status != registry.StatusCompleted {
		return fmt.Errorf("agent reaped with status %s (forced shutdown)", outcome.Status)
	}
	return nil
}

// configureGitHubStatusCheck wires reaper.GitHubStatus from cfg when a
// GitHub App installation is configured; it is a no-op (nil error) when
// cfg is left at its zero value.
func configureGitHubStatusCheck(reaper *reap.Reaper, cfg config.GitHubConfig) error {
	if cfg.AppID == 0 || cfg.InstallationID == 0 {
		return nil
	}
	key, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read github private key: %w", err)
	}
	tm, err := github.NewTokenManager(fmt.Sprintf("%d", cfg.AppID), cfg.InstallationID, key)
	if err != nil {
		return fmt.Errorf("failed to construct github token manager: %w", err)
	}
	reaper.GitHubStatus = github.NewStatusClient(tm)
	reaper.GitHubOwner = cfg.Owner
	reaper.GitHubRepo = cfg.Repo
	reaper.GitHubRequireGreen = cfg.RequireGreenCheck
	return nil
}
