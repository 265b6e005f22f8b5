// Package cli defines the Cobra command tree for the dtwin CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dtwin",
	Short: "A digital twin that answers from your documents and remembers your conversations",
	Long: `dtwin is a retrieval-augmented digital twin.

Ingest PDF, Word and text documents into a local vector store, then chat
with a persona that answers from those documents and from its memory of
past conversations.

Run 'dtwin init' in a directory to create a workspace.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		newInitCmd(),
		newSetupCmd(),
		newChatCmd(),
		newAskCmd(),
		newIngestCmd(),
		newWatchCmd(),
		newMemoryCmd(),
		newRememberCmd(),
		newSeedCmd(),
		newBackfillCmd(),
		newUploadsCmd(),
		newExportCmd(),
		newServeCmd(),
		newMCPCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dtwin %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
