package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scientia",
	Short: "Document indexing, retrieval and reporting service",
	Long: `scientia ingests documents, indexes them into a vector store and
answers questions grounded on the indexed fragments. It also produces
summaries and fleet status reports as background tasks.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
