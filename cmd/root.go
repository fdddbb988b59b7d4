package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "legalrag",
	Short: "Legal question answering over a pre-indexed corpus",
	Long: `legalrag answers natural-language legal questions from a pre-indexed
corpus of QA records and document chunks, combining keyword and vector
search with grounded answer generation.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
