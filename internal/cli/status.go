package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dconlin/orch/internal/registry"
	"github.com/spf13/cobra"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status [agent-or-issue-id]",
	Short: "List agents and their current status",
	Long: `status prints every active agent, or every agent ever registered when
--all is given. Passing an id narrows the listing to the matching agent,
looked up by agent id or by its primary linked issue.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "include completed, abandoned, and failed agents")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		agent, err := a.Store.Find(args[0])
		if err != nil {
			return err
		}
		if agent == nil {
			return fmt.Errorf("no agent found matching %q", args[0])
		}
		return printAgents([]registry.Agent{*agent})
	}

	var agents []registry.Agent
	if statusAll {
		agents, err = a.Store.ListAll()
	} else {
		agents, err = a.Store.ListActive()
	}
	if err != nil {
		return err
	}
	return printAgents(agents)
}

func printAgents(agents []registry.Agent) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tPROJECT\tWINDOW\tSTATUS\tISSUE\tUPDATED")
	for _, a := range agents {
		primary, _ := a.PrimaryIssue()
		fmt.Fprintf(w, "%s\t%s\t%s:%s\t%s\t%s\t%s\n",
			a.ID, a.Project, a.Window, a.WindowID, a.Status, primary, a.UpdatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}
