package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "crm.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crm",
		Short: "Hopewell CRM: task and recovery-seeker pipelines",
		Long:  "Manages the kanban pipelines used to track tasks, enquiries and people in active treatment.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newPipelineCmd())
	cmd.AddCommand(newStageCmd())
	cmd.AddCommand(newCardCmd())
	cmd.AddCommand(newBoardCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "crm %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
