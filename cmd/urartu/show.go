package main

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:     "show",
		Short:   "Print the automaton of a grammar in a readable format",
		Example: `  urartu show grammar.ur`,
		Args:    cobra.ExactArgs(1),
		RunE:    runShow,
	}
	rootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	cg, err := compileGrammar(args[0])
	if err != nil {
		return err
	}
	cg.WriteReport(os.Stdout)
	return nil
}
