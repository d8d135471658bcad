package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "urartu",
	Short: "Generate packed parse tables and tokenizers from a grammar",
	Long: `urartu compiles a grammar file into two artifacts:
- a parser module holding packed LR tables and tokenizer automata, and
- a terms module exporting the numeric term ids under their source names.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}
