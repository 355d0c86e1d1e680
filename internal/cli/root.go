package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dconlin/orch/internal/orcherr"
	"github.com/dconlin/orch/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "orch",
	Short: "orch - local multi-agent coding session orchestrator",
	Long: `orch spawns and supervises Claude Code agents in tmux windows on this
machine, tracking each agent's lifecycle against a durable local registry
and an issue tracker.

It plans spawn contexts from skill templates and tracked issues, launches
and reconciles tmux sessions, verifies completion gates before an agent's
work is accepted, and reaps finished or abandoned agents by interrupting,
killing, and cleaning up their workspace.

Example:
  orch spawn --project myapp --project-dir /path/to/myapp --issue myapp-42 --skill bugfix`,
}

// Execute runs the root command, appending any returned error to the
// rolling JSONL error log before propagating it to main (spec.md §7).
func Execute() error {
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		command, subcommand := commandPath(cmd)
		errorLog().Append(command, subcommand, err)
	}
	return err
}

// commandPath splits a resolved cobra command into its top-level command
// name and the remainder of the invocation, e.g. "orch spawn" -> ("orch",
// "spawn").
func commandPath(cmd *cobra.Command) (command, subcommand string) {
	if cmd == nil {
		return "orch", ""
	}
	full := cmd.CommandPath()
	if idx := len(rootCmd.Name()); idx < len(full) {
		return rootCmd.Name(), full[idx+1:]
	}
	return rootCmd.Name(), ""
}

func errorLog() *orcherr.Log {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return orcherr.NewLog(filepath.Join(home, ".orch", "errors.jsonl"), orcherr.DefaultMaxEntries)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set version for --version flag
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .orch.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".orch")
	}

	viper.SetEnvPrefix("ORCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
